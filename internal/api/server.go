// Package api provides the read-only HTTP report surface for painmap.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/fraglens/painmap/internal/db/gorm"
	"github.com/fraglens/painmap/pkg/models"
)

// ClusterReader is the cluster-store surface the API needs.
type ClusterReader interface {
	GetClusterByID(ctx context.Context, id string) (*models.Cluster, error)
	ListClusters(ctx context.Context, limit int) ([]*models.Cluster, error)
	ClusterCount(ctx context.Context) (int64, error)
	AverageClusterSize(ctx context.Context) (float64, error)
}

// EventReader is the event-store surface the API needs.
type EventReader interface {
	SearchEventsFTS(ctx context.Context, query string, limit int) ([]*models.PainEvent, error)
	EventCount(ctx context.Context) (int64, error)
	UnclusteredCount(ctx context.Context) (int64, error)
}

// Server serves cluster and event data for inspection. Read-only; all
// mutation goes through clustering runs.
type Server struct {
	clusters ClusterReader
	events   EventReader
}

// NewServer creates an API server over the given stores.
func NewServer(clusters ClusterReader, events EventReader) *Server {
	return &Server{clusters: clusters, events: events}
}

// Handler returns the chi router for the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/clusters", s.handleListClusters)
		r.Get("/clusters/{id}", s.handleGetCluster)
		r.Get("/events/search", s.handleSearchEvents)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	limit := parseLimitParam(r, 50)
	clusters, err := s.clusters.ListClusters(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list clusters failed")
		log.Error().Err(err).Msg("List clusters failed")
		return
	}
	if clusters == nil {
		clusters = []*models.Cluster{}
	}
	writeJSON(w, http.StatusOK, clusters)
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cluster, err := s.clusters.GetClusterByID(r.Context(), id)
	if errors.Is(err, gormdb.ErrClusterNotFound) {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get cluster failed")
		log.Error().Err(err).Str("cluster_id", id).Msg("Get cluster failed")
		return
	}
	writeJSON(w, http.StatusOK, cluster)
}

func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	limit := parseLimitParam(r, 10)
	events, err := s.events.SearchEventsFTS(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		log.Error().Err(err).Str("query", query).Msg("Event search failed")
		return
	}
	if events == nil {
		events = []*models.PainEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// statsResponse summarizes the persisted clustering state.
type statsResponse struct {
	Events             int64   `json:"events"`
	UnclusteredEvents  int64   `json:"unclustered_events"`
	Clusters           int64   `json:"clusters"`
	AverageClusterSize float64 `json:"average_cluster_size"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := s.events.EventCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		log.Error().Err(err).Msg("Event count failed")
		return
	}
	unclustered, err := s.events.UnclusteredCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		log.Error().Err(err).Msg("Unclustered count failed")
		return
	}
	clusters, err := s.clusters.ClusterCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		log.Error().Err(err).Msg("Cluster count failed")
		return
	}
	avg, err := s.clusters.AverageClusterSize(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		log.Error().Err(err).Msg("Average cluster size failed")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Events:             events,
		UnclusteredEvents:  unclustered,
		Clusters:           clusters,
		AverageClusterSize: avg,
	})
}

// parseLimitParam parses the "limit" query parameter, falling back to
// defaultLimit when missing or invalid.
func parseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
