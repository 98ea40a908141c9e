package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/domain"
)

// TemplateMarker is embedded in fallback bodies so downstream consumers can
// detect degraded-mode content
const TemplateMarker = "<!-- dealscope:fallback -->"

// generator system prompt, the response must be a bare JSON object
const generatorSystemPrompt = `You are a travel content writer. Write publishable copy for the deal and respond with a single JSON object:
{"title": "<catchy headline, max 80 chars>", "body": "<article body in HTML, 2-4 paragraphs>", "excerpt": "<1-2 sentence teaser>", "meta_description": "<SEO description, max 160 chars>", "tags": ["<3-5 topic tags>"]}
Keep the booking link out of the body, it is attached separately. Respond with JSON only, no markdown fences.`

// Generated is the content-generation outcome for a deal
type Generated struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Excerpt         string   `json:"excerpt"`
	MetaDescription string   `json:"meta_description"`
	Tags            []string `json:"tags"`
	Fallback        bool     `json:"-"`
}

// Generator produces publishable copy, AI-backed with a fixed HTML template
// fallback
type Generator struct {
	client *Client
}

// NewGenerator creates a content generator
func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate produces copy for a single deal. Any AI failure falls back to the
// template. The only error it returns is context cancellation, so a shutdown
// mid-batch doesn't persist template content for deals that never got a real
// attempt.
func (g *Generator) Generate(ctx context.Context, deal *domain.Deal) (Generated, error) {
	if err := ctx.Err(); err != nil {
		return Generated{}, err
	}
	if !g.client.Enabled() {
		return g.fallback(deal), nil
	}

	content, err := g.client.Complete(ctx, generatorSystemPrompt, g.buildPrompt(deal))
	if err != nil {
		if ctx.Err() != nil {
			return Generated{}, ctx.Err()
		}
		lgr.Printf("[WARN] ai content generation failed for deal %d %q: %v", deal.ID, deal.Title, err)
		return g.fallback(deal), nil
	}

	var generated Generated
	if err := json.Unmarshal([]byte(stripFences(content)), &generated); err != nil {
		lgr.Printf("[WARN] unparsable ai content for deal %d: %v", deal.ID, err)
		return g.fallback(deal), nil
	}
	if generated.Title == "" || generated.Body == "" {
		lgr.Printf("[WARN] incomplete ai content for deal %d, using template", deal.ID)
		return g.fallback(deal), nil
	}
	return generated, nil
}

// buildPrompt renders the deal for the generator
func (g *Generator) buildPrompt(deal *domain.Deal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write about this travel deal:\n")
	fmt.Fprintf(&sb, "Title: %s\nDestination: %s\n", deal.Title, deal.Destination)
	if deal.OriginalPrice > 0 && deal.DiscountedPrice > 0 {
		fmt.Fprintf(&sb, "Price: %.2f %s (was %.2f %s)\n",
			deal.DiscountedPrice, deal.Currency, deal.OriginalPrice, deal.Currency)
	}
	if deal.TravelStart != "" {
		fmt.Fprintf(&sb, "Travel dates: %s - %s\n", deal.TravelStart, deal.TravelEnd)
	}
	if deal.Description != "" {
		desc := deal.Description
		if len(desc) > 800 {
			desc = desc[:800] + "..."
		}
		fmt.Fprintf(&sb, "Details: %s\n", desc)
	}
	return sb.String()
}

// fallback interpolates the fixed HTML template, clearly distinguishable
// from AI output via TemplateMarker
func (g *Generator) fallback(deal *domain.Deal) Generated {
	dest := deal.Destination
	if dest == "" {
		dest = deal.Title
	}

	price := ""
	if deal.DiscountedPrice > 0 {
		price = fmt.Sprintf("<p>Now <strong>%.2f %s</strong>", deal.DiscountedPrice, deal.Currency)
		if deal.OriginalPrice > deal.DiscountedPrice {
			price += fmt.Sprintf(", down from %.2f %s", deal.OriginalPrice, deal.Currency)
		}
		price += ".</p>\n"
	}

	body := fmt.Sprintf("%s\n<h2>%s</h2>\n<p>A travel deal to %s is available for a limited time.</p>\n%s",
		TemplateMarker, deal.Title, dest, price)

	return Generated{
		Title:           deal.Title,
		Body:            body,
		Excerpt:         fmt.Sprintf("Travel deal: %s", deal.Title),
		MetaDescription: fmt.Sprintf("Limited-time travel deal to %s.", dest),
		Tags:            []string{"travel", "deals"},
		Fallback:        true,
	}
}
