package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/umputun/dealscope/pkg/domain"
	"github.com/umputun/dealscope/pkg/pipeline"
)

// statusHandler returns server status with deal and queue counters
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}

	if count, err := s.store.CountDeals(ctx); err == nil {
		status["deals"] = count
	}
	if stats, err := s.store.GetQueueStats(ctx); err == nil {
		status["queue"] = stats
	}

	RenderJSON(w, r, http.StatusOK, status)
}

// listDealsHandler returns deals filtered by query parameters
func (s *Server) listDealsHandler(w http.ResponseWriter, r *http.Request) {
	filter := domain.DealFilter{
		Status:      domain.DealStatus(r.URL.Query().Get("status")),
		Destination: r.URL.Query().Get("destination"),
		Limit:       queryInt(r, "limit", 0),
		Offset:      queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("source"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			RenderError(w, r, fmt.Errorf("invalid source ID"), http.StatusBadRequest)
			return
		}
		filter.SourceID = id
	}
	if v := r.URL.Query().Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			RenderError(w, r, fmt.Errorf("invalid min_score"), http.StatusBadRequest)
			return
		}
		filter.MinScore = score
	}

	deals, err := s.store.ListDeals(r.Context(), filter)
	if err != nil {
		log.Printf("[ERROR] failed to list deals: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"deals": deals, "count": len(deals)})
}

// getDealHandler returns a single deal by id
func (s *Server) getDealHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		RenderError(w, r, fmt.Errorf("invalid deal ID"), http.StatusBadRequest)
		return
	}

	deal, err := s.store.GetDeal(r.Context(), id)
	if err != nil {
		RenderError(w, r, err, http.StatusNotFound)
		return
	}
	RenderJSON(w, r, http.StatusOK, deal)
}

// listSourcesHandler returns all configured sources
func (s *Server) listSourcesHandler(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.GetSources(r.Context())
	if err != nil {
		log.Printf("[ERROR] failed to list sources: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"sources": sources, "count": len(sources)})
}

// queueHandler returns queue counters and recent items
func (s *Server) queueHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.store.GetQueueStats(ctx)
	if err != nil {
		log.Printf("[ERROR] failed to get queue stats: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	items, err := s.store.GetQueueItems(ctx, queryInt(r, "limit", 50))
	if err != nil {
		log.Printf("[ERROR] failed to get queue items: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"stats": stats, "items": items})
}

// listArticlesHandler returns published articles
func (s *Server) listArticlesHandler(w http.ResponseWriter, r *http.Request) {
	articles, err := s.store.GetArticles(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		log.Printf("[ERROR] failed to list articles: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"articles": articles, "count": len(articles)})
}

// lastRunsHandler returns the most recent pipeline stage summaries
func (s *Server) lastRunsHandler(w http.ResponseWriter, r *http.Request) {
	RenderJSON(w, r, http.StatusOK, s.scheduler.Runs())
}

// triggerFetchHandler runs discovery on demand
func (s *Server) triggerFetchHandler(w http.ResponseWriter, r *http.Request) {
	result := s.scheduler.TriggerFetch(r.Context())
	if result == nil {
		RenderError(w, r, fmt.Errorf("discovery run failed"), http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, result)
}

// triggerEvaluateHandler runs evaluation on demand
func (s *Server) triggerEvaluateHandler(w http.ResponseWriter, r *http.Request) {
	result := s.scheduler.TriggerEvaluate(r.Context())
	if result == nil {
		RenderError(w, r, fmt.Errorf("evaluation run failed"), http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, result)
}

// triggerPublishHandler runs a publish batch on demand. A batch below the
// configured minimum is not an internal error, it reports as conflict.
func (s *Server) triggerPublishHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.TriggerPublish(r.Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrBatchBelowMinimum) {
			RenderJSON(w, r, http.StatusConflict, result)
			return
		}
		log.Printf("[ERROR] publish run failed: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, result)
}

// queryInt parses an integer query parameter with a default
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
