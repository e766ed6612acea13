package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/feeds"
	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	bundleService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/config"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	sloghttp "github.com/samber/slog-http"
)

// Describer reads a channel's bundle configuration
type Describer interface {
	Describe(ctx context.Context, channelID string) (*bundleService.Description, error)
}

// Previewer renders a channel's bundle text
type Previewer interface {
	RenderBundle(ctx context.Context, channelID string) (string, error)
}

// FeedGenerator builds a channel's RSS feed
type FeedGenerator interface {
	GenerateFeed(ctx context.Context, channelID, baseURL string) (*feeds.Feed, error)
}

// Server exposes bundles and their feeds over HTTP
type Server struct {
	cfg       *config.Config
	bundles   Describer
	previewer Previewer
	feeds     FeedGenerator
	logger    *slog.Logger
	server    *http.Server
}

type bundleResponse struct {
	ChannelID   string                `json:"channel_id"`
	Bundle      *bundleDomain.Bundle  `json:"bundle"`
	Groups      []*bundleDomain.Group `json:"groups"`
	LastRefresh *time.Time            `json:"last_refresh"`
}

// New creates a new HTTP server
func New(cfg *config.Config, bundles Describer, previewer Previewer, feeds FeedGenerator) *Server {
	return &Server{
		cfg:       cfg,
		bundles:   bundles,
		previewer: previewer,
		feeds:     feeds,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the routed handler wrapped in access logging and recovery
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /bundles/{channelID}", s.handleBundle)
	mux.HandleFunc("GET /bundles/{channelID}/preview", s.handlePreview)
	mux.HandleFunc("GET /feed/{channelID}", s.handleFeed)

	handler := sloghttp.Recovery(mux)
	return sloghttp.New(s.logger)(handler)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	s.logger.Info("HTTP server starting", "addr", addr)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")

	desc, err := s.bundles.Describe(r.Context(), channelID)
	if err != nil {
		s.writeError(w, err, channelID, "Failed to load bundle")
		return
	}

	resp := bundleResponse{
		ChannelID: channelID,
		Bundle:    desc.Bundle,
		Groups:    desc.Groups,
	}
	if desc.LastRefresh > 0 {
		at := time.Unix(desc.LastRefresh, 0).In(s.location())
		resp.LastRefresh = &at
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Error encoding bundle", "channel_id", channelID, "error", err)
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")

	text, err := s.previewer.RenderBundle(r.Context(), channelID)
	if err != nil {
		s.writeError(w, err, channelID, "Failed to render bundle")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")
	baseURL := fmt.Sprintf("%s://%s", getScheme(r), r.Host)

	feed, err := s.feeds.GenerateFeed(r.Context(), channelID, baseURL)
	if err != nil {
		s.writeError(w, err, channelID, "Failed to generate feed")
		return
	}

	rss, err := feed.ToRss()
	if err != nil {
		s.logger.Error("Error converting feed to RSS", "channel_id", channelID, "error", err)
		http.Error(w, "Failed to generate RSS", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rss))
}

func (s *Server) writeError(w http.ResponseWriter, err error, channelID, msg string) {
	if errors.IsNotFound(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error(msg, "channel_id", channelID, "error", err)
	status := http.StatusInternalServerError
	if errors.IsExternal(err) {
		status = http.StatusBadGateway
	}
	http.Error(w, msg, status)
}

func (s *Server) location() *time.Location {
	if s.cfg != nil && s.cfg.Location != nil {
		return s.cfg.Location
	}
	return time.UTC
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
