package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/domain"
)

// FallbackMarker tags reasoning produced by the deterministic path so
// degraded output is detectable downstream
const FallbackMarker = "[fallback]"

// evaluator system prompt, the response must be a bare JSON object
const evaluatorSystemPrompt = `You are a travel deal analyst. Evaluate the deal and respond with a single JSON object:
{"quality": <1-100>, "value": <1-100>, "appeal": <1-100>, "reasoning": "<brief explanation, max 200 chars>"}
- quality: completeness and trustworthiness of the deal data
- value: how good the price is versus the original price
- appeal: attractiveness of the destination and timing
Respond with JSON only, no markdown.`

// Evaluation is the scoring outcome for a deal
type Evaluation struct {
	Score     float64
	Reasoning string
	Fallback  bool
}

// Evaluator scores deals 0-100, AI-backed with a deterministic price-based
// fallback
type Evaluator struct {
	client          *Client
	heuristicWeight float64 // dampens scores of heuristically extracted deals
}

// NewEvaluator creates an evaluator
func NewEvaluator(client *Client, heuristicWeight float64) *Evaluator {
	if heuristicWeight <= 0 || heuristicWeight > 1 {
		heuristicWeight = 1
	}
	return &Evaluator{client: client, heuristicWeight: heuristicWeight}
}

// Evaluate scores a single deal. Any AI failure (no credential, call error,
// unparsable response) falls back to the price formula, it never returns an
// error to the batch.
func (e *Evaluator) Evaluate(ctx context.Context, deal *domain.Deal) Evaluation {
	if !e.client.Enabled() {
		return e.fallback(deal)
	}

	content, err := e.client.Complete(ctx, evaluatorSystemPrompt, e.buildPrompt(deal))
	if err != nil {
		lgr.Printf("[WARN] ai evaluation failed for deal %d %q: %v", deal.ID, deal.Title, err)
		return e.fallback(deal)
	}

	var resp struct {
		Quality   float64 `json:"quality"`
		Value     float64 `json:"value"`
		Appeal    float64 `json:"appeal"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		lgr.Printf("[WARN] unparsable ai evaluation for deal %d: %v", deal.ID, err)
		return e.fallback(deal)
	}

	// out-of-range and missing sub-scores are clamped, not rejected
	quality := clamp(resp.Quality, 1, 100)
	value := clamp(resp.Value, 1, 100)
	appeal := clamp(resp.Appeal, 1, 100)
	score := math.Round((quality + value + appeal) / 3)

	return Evaluation{
		Score:     e.dampen(score, deal),
		Reasoning: resp.Reasoning,
	}
}

// buildPrompt renders the deal for the evaluator
func (e *Evaluator) buildPrompt(deal *domain.Deal) string {
	prompt := fmt.Sprintf("Title: %s\nDestination: %s\nOriginal price: %.2f %s\nDiscounted price: %.2f %s\n",
		deal.Title, deal.Destination, deal.OriginalPrice, deal.Currency, deal.DiscountedPrice, deal.Currency)
	if deal.TravelStart != "" {
		prompt += fmt.Sprintf("Travel dates: %s - %s\n", deal.TravelStart, deal.TravelEnd)
	}
	if deal.Description != "" {
		desc := deal.Description
		if len(desc) > 500 {
			desc = desc[:500] + "..."
		}
		prompt += "Description: " + desc + "\n"
	}
	if deal.Provenance == domain.ProvenanceHeuristic {
		prompt += "Note: prices and destination were extracted heuristically from free text and may be imprecise.\n"
	}
	return prompt
}

// fallback computes the deterministic price-based score: 50 plus the
// discount fraction scaled to 100, clamped into [1,100]
func (e *Evaluator) fallback(deal *domain.Deal) Evaluation {
	score := 50.0
	reasoning := FallbackMarker + " no price data, neutral score"
	if df := deal.DiscountFraction(); df > 0 {
		score = clamp(50+df*100, 1, 100)
		reasoning = fmt.Sprintf("%s price-based score, %.0f%% discount", FallbackMarker, df*100)
	}
	return Evaluation{
		Score:     e.dampen(score, deal),
		Reasoning: reasoning,
		Fallback:  true,
	}
}

// dampen pulls scores of heuristically extracted deals toward neutral so a
// best-guess extraction can't dominate the publish ranking
func (e *Evaluator) dampen(score float64, deal *domain.Deal) float64 {
	if deal.Provenance != domain.ProvenanceHeuristic {
		return clamp(score, 0, 100)
	}
	return clamp(50+(score-50)*e.heuristicWeight, 0, 100)
}
