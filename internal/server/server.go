package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/handler"
	"github.com/dukerupert/homequest/internal/metrics"
	"github.com/dukerupert/homequest/internal/middleware"
	ws "github.com/dukerupert/homequest/internal/websocket"
)

// Config holds the HTTP-facing settings.
type Config struct {
	AppKey        string
	ProofMaxBytes int64
	RateLimit     float64
	RateBurst     int
	// TrustProxy keys clients by CF-Connecting-IP or X-Forwarded-For.
	TrustProxy bool
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	accountH    *handler.AccountHandler
	groupH      *handler.GroupHandler
	questH      *handler.QuestHandler
	submissionH *handler.SubmissionHandler
	shopH       *handler.ShopHandler
	tokens      *auth.Issuer
	rateLimiter *middleware.RateLimiter
	clientIP    func(*http.Request) string
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	appKey      string
	logger      *slog.Logger
}

func New(db *sql.DB, e *engine.Engine, hub *ws.Hub, hasher *auth.Hasher, tokens *auth.Issuer, m *metrics.Metrics, gatherer prometheus.Gatherer, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		db:          db,
		hub:         hub,
		accountH:    handler.NewAccountHandler(e, hasher, tokens, logger.With("component", "account")),
		groupH:      handler.NewGroupHandler(e, hub, logger.With("component", "group")),
		questH:      handler.NewQuestHandler(e, logger.With("component", "quest")),
		submissionH: handler.NewSubmissionHandler(e, cfg.ProofMaxBytes, logger.With("component", "submission")),
		shopH:       handler.NewShopHandler(e, logger.With("component", "shop")),
		tokens:      tokens,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		clientIP:    middleware.ClientIP(cfg.TrustProxy),
		metrics:     m,
		gatherer:    gatherer,
		appKey:      cfg.AppKey,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no app key or token)
	mux.HandleFunc("GET /health", s.healthHandler)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}

	// Credential routes: app key only
	mux.Handle("POST /api/accounts", s.public(s.accountH.Register))
	mux.Handle("POST /api/token", s.public(s.accountH.Token))

	s.registerProtectedRoutes(mux)

	// Instrument must sit directly on the mux to see the matched pattern.
	instrumented := middleware.Instrument(s.metrics)(mux)
	return middleware.RequestLogger(s.logger.With("component", "http"), s.clientIP)(instrumented)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.protected(h))
	}

	// Account
	handle("GET /api/me", s.accountH.Me)
	handle("GET /api/me/groups", s.accountH.MyGroups)
	handle("GET /api/me/purchases", s.accountH.MyPurchases)

	// Groups and membership
	handle("POST /api/groups", s.groupH.Create)
	handle("POST /api/groups/join", s.groupH.Join)
	handle("GET /api/groups/{id}", s.groupH.Get)
	handle("DELETE /api/groups/{id}", s.groupH.Delete)
	handle("POST /api/groups/{id}/invite-code", s.groupH.InviteCode)
	handle("POST /api/groups/{id}/invite-code/reset", s.groupH.ResetInviteCode)
	handle("PUT /api/groups/{id}/members/{account_id}/role", s.groupH.SetRole)
	handle("DELETE /api/groups/{id}/members/{account_id}", s.groupH.RemoveMember)
	handle("POST /api/groups/{id}/leave", s.groupH.Leave)
	handle("GET /api/groups/{id}/ws", s.groupH.Stream)

	// Quests
	handle("POST /api/groups/{id}/quests", s.questH.Create)
	handle("GET /api/groups/{id}/quests", s.questH.List)
	handle("DELETE /api/quests/{id}", s.questH.Delete)

	// Submissions
	handle("POST /api/quests/{id}/submissions", s.submissionH.Create)
	handle("GET /api/groups/{id}/submissions", s.submissionH.Pending)
	handle("GET /api/groups/{id}/submissions/history", s.submissionH.History)
	handle("GET /api/groups/{id}/submissions/mine", s.submissionH.Mine)
	handle("POST /api/submissions/{id}/review", s.submissionH.Review)
	handle("GET /api/submissions/{id}/proof", s.submissionH.Proof)

	// Shop
	handle("POST /api/groups/{id}/shop", s.shopH.CreateItem)
	handle("GET /api/groups/{id}/shop", s.shopH.ListItems)
	handle("DELETE /api/shop/{id}", s.shopH.DeleteItem)
	handle("POST /api/shop/{id}/purchase", s.shopH.Purchase)
	handle("GET /api/groups/{id}/purchases", s.shopH.GroupPurchases)
}

func (s *Server) public(h http.HandlerFunc) http.Handler {
	rl := middleware.RateLimit(s.rateLimiter, s.clientIP)
	return middleware.RequireAppKey(s.appKey)(rl(h))
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return s.public(middleware.RequireAuth(s.tokens)(h).ServeHTTP)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
