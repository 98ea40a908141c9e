package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/domain"
)

// ErrBatchBelowMinimum aborts a publish run that can't fill the minimum
// batch. The run has no side effects in that case.
var ErrBatchBelowMinimum = errors.New("not enough deals for publish batch")

// PublishStore is the store surface the publisher needs
type PublishStore interface {
	GetCompletedQueueItems(ctx context.Context, limit int) ([]domain.QueueItem, error)
	GetDeal(ctx context.Context, id int64) (*domain.Deal, error)
	GetContent(ctx context.Context, dealID int64) (*domain.Content, error)
	CreateArticle(ctx context.Context, article *domain.Article) error
	MarkDealPublished(ctx context.Context, dealID, articleID int64) error
	UpdateDealStatus(ctx context.Context, dealID int64, status domain.DealStatus) error
}

// LinkRewriter rewrites booking urls through affiliate programs
type LinkRewriter interface {
	Rewrite(ctx context.Context, rawURL string) string
}

// PublishResult summarizes a publish run
type PublishResult struct {
	Published int      `json:"published"`
	Queued    int      `json:"queued"`
	Errors    []string `json:"errors,omitempty"`
}

// Publisher assembles publish batches from completed queue items, best
// deals first. In automatic mode it creates articles with affiliate-rewritten
// booking links, in manual mode it parks deals for editorial review.
type Publisher struct {
	store       PublishStore
	linker      LinkRewriter
	mode        string
	minArticles int
	maxArticles int
}

// NewPublisher creates a publisher. Mode is "automatic" or "manual".
func NewPublisher(store PublishStore, linker LinkRewriter, mode string, minArticles, maxArticles int) *Publisher {
	if minArticles <= 0 {
		minArticles = 1
	}
	if maxArticles < minArticles {
		maxArticles = minArticles
	}
	return &Publisher{store: store, linker: linker, mode: mode, minArticles: minArticles, maxArticles: maxArticles}
}

// Run publishes the current batch. A batch below the minimum aborts with
// ErrBatchBelowMinimum and publishes nothing.
func (p *Publisher) Run(ctx context.Context) (*PublishResult, error) {
	items, err := p.store.GetCompletedQueueItems(ctx, p.maxArticles)
	if err != nil {
		return nil, fmt.Errorf("get completed queue items: %w", err)
	}

	result := &PublishResult{}
	if len(items) < p.minArticles {
		err := fmt.Errorf("%w: have %d, need %d", ErrBatchBelowMinimum, len(items), p.minArticles)
		result.Errors = append(result.Errors, err.Error())
		lgr.Printf("[INFO] publish run skipped: %v", err)
		return result, err
	}

	lgr.Printf("[INFO] publish run started, %d deals in batch, mode %s", len(items), p.mode)

	for _, item := range items {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
		if err := p.publishDeal(ctx, item.DealID, result); err != nil {
			lgr.Printf("[WARN] failed to publish deal %d: %v", item.DealID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("deal %d: %v", item.DealID, err))
		}
	}

	lgr.Printf("[INFO] publish run completed: %d published, %d queued for review", result.Published, result.Queued)
	return result, nil
}

// publishDeal handles a single batch member according to the publish mode
func (p *Publisher) publishDeal(ctx context.Context, dealID int64, result *PublishResult) error {
	if p.mode == "manual" {
		if err := p.store.UpdateDealStatus(ctx, dealID, domain.DealStatusReview); err != nil {
			return fmt.Errorf("mark for review: %w", err)
		}
		result.Queued++
		return nil
	}

	deal, err := p.store.GetDeal(ctx, dealID)
	if err != nil {
		return fmt.Errorf("load deal: %w", err)
	}
	content, err := p.store.GetContent(ctx, dealID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	article := &domain.Article{
		DealID:   deal.ID,
		Title:    content.Title,
		Body:     p.attachBookingLink(ctx, content.Body, deal),
		Excerpt:  content.Excerpt,
		MetaDesc: content.MetaDescription,
		Tags:     content.Tags,
	}
	if err := p.store.CreateArticle(ctx, article); err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	if err := p.store.MarkDealPublished(ctx, deal.ID, article.ID); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	result.Published++
	lgr.Printf("[DEBUG] published deal %d as article %d", deal.ID, article.ID)
	return nil
}

// attachBookingLink rewrites any inline booking-url occurrences through the
// affiliate linker and appends a call-to-action link to the body
func (p *Publisher) attachBookingLink(ctx context.Context, body string, deal *domain.Deal) string {
	if deal.BookingURL == "" {
		return body
	}

	rewritten := p.linker.Rewrite(ctx, deal.BookingURL)
	body = strings.ReplaceAll(body, deal.BookingURL, rewritten)
	if !strings.Contains(body, rewritten) {
		body += fmt.Sprintf("\n<p><a href=%q rel=\"sponsored nofollow\">Book this deal</a></p>", rewritten)
	}
	return body
}
