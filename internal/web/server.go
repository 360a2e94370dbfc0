// Package web serves the dashboard API and the live websocket feed.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"prime_pips/internal/accounts"
	"prime_pips/internal/agents"
	"prime_pips/internal/auth"
	"prime_pips/internal/logging"
	"prime_pips/internal/market"
	"prime_pips/internal/messages"
	"prime_pips/internal/notify"
	"prime_pips/internal/store"
	"prime_pips/internal/users"
	"prime_pips/internal/wallet"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Services is everything the handlers call into.
type Services struct {
	Store    *store.Store
	Auth     *auth.Service
	Wallet   *wallet.Service
	Market   *market.Feed
	Agents   *agents.Service
	Accounts *accounts.Service
	Notify   *notify.Service
	Messages *messages.Service
	Users    *users.Service
}

type Options struct {
	Port            string
	AllowedOrigins  []string
	TelegramEnabled bool
}

type Server struct {
	svc  Services
	opts Options
	hub  *Hub
	log  *zap.Logger

	handler http.Handler
	http    *http.Server
	started time.Time
}

func NewServer(svc Services, hub *Hub, opts Options, log *zap.Logger) *Server {
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		svc:     svc,
		opts:    opts,
		hub:     hub,
		log:     logging.OrNop(log),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.authed(s.handleLogout))
	mux.HandleFunc("GET /api/auth/me", s.authed(s.handleMe))
	mux.HandleFunc("PUT /api/settings/profile", s.authed(s.handleProfile))
	mux.HandleFunc("POST /api/settings/password", s.authed(s.handlePassword))

	mux.HandleFunc("GET /api/tiers", s.handleTiers)
	mux.HandleFunc("GET /api/wallets", s.authed(s.handlePortfolio))
	mux.HandleFunc("POST /api/wallets/deposit", s.authed(s.handleDeposit))
	mux.HandleFunc("POST /api/wallets/withdraw", s.authed(s.handleWithdraw))
	mux.HandleFunc("POST /api/wallets/transfer", s.authed(s.handleTransfer))
	mux.HandleFunc("GET /api/wallets/history", s.authed(s.handleHistory))

	mux.HandleFunc("GET /api/market", s.handleMarket)
	mux.HandleFunc("POST /api/market/order", s.authed(s.handleOrder))

	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("POST /api/agents/applications", s.authed(s.handleApply))
	mux.HandleFunc("GET /api/agents/applications", s.authed(s.handleApplications))
	mux.HandleFunc("POST /api/agents/applications/{id}/review", s.admin(s.handleReview))

	mux.HandleFunc("GET /api/accounts", s.authed(s.handleAccounts))
	mux.HandleFunc("GET /api/accounts/approved", s.authed(s.handleApprovedAccounts))
	mux.HandleFunc("POST /api/accounts", s.authed(s.handleCreateAccount))
	mux.HandleFunc("PUT /api/accounts/{id}", s.authed(s.handleUpdateAccount))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.authed(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/accounts/{id}/approve", s.admin(s.handleApproveAccount))
	mux.HandleFunc("POST /api/accounts/{id}/reject", s.admin(s.handleRejectAccount))

	mux.HandleFunc("GET /api/notifications", s.authed(s.handleNotifications))
	mux.HandleFunc("POST /api/notifications", s.admin(s.handleCreateNotification))
	mux.HandleFunc("GET /api/notifications/stats", s.admin(s.handleNotificationStats))
	mux.HandleFunc("DELETE /api/notifications/{id}", s.admin(s.handleDeleteNotification))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.authed(s.handleReadNotification))

	mux.HandleFunc("GET /api/messages", s.authed(s.handleInbox))
	mux.HandleFunc("POST /api/messages", s.authed(s.handleSendMessage))
	mux.HandleFunc("POST /api/messages/{id}/read", s.authed(s.handleOpenMessage))

	mux.HandleFunc("GET /api/admin/overview", s.admin(s.handleOverview))
	mux.HandleFunc("GET /api/admin/users", s.admin(s.handleListUsers))
	mux.HandleFunc("POST /api/admin/users", s.admin(s.handleCreateUser))
	mux.HandleFunc("GET /api/admin/users/{id}", s.admin(s.handleGetUser))
	mux.HandleFunc("PUT /api/admin/users/{id}", s.admin(s.handleUpdateUser))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.admin(s.handleDeleteUser))
	mux.HandleFunc("POST /api/admin/users/{id}/status", s.admin(s.handleUserStatus))
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info(fmt.Sprintf("🌐 Web server starting on http://localhost:%s", s.opts.Port))
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Web server error", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexHTML, time.Since(s.started).Round(time.Second), s.hub.Clients())
}

type serviceStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Latency int64  `json:"latency_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	results := make([]serviceStatus, 0, 3)

	start := time.Now()
	all, err := s.svc.Store.Users.List(ctx)
	bin := serviceStatus{Name: "JSONBin", Latency: time.Since(start).Milliseconds()}
	if err != nil {
		bin.Status = "error"
		bin.Message = err.Error()
	} else {
		bin.Status = "ok"
		bin.Message = fmt.Sprintf("Users bin reachable (%d users)", len(all))
	}
	results = append(results, bin)

	feed := serviceStatus{Name: "Market Feed", Status: "waiting", Message: "No update yet"}
	if at := s.svc.Market.UpdatedAt(); !at.IsZero() {
		feed.Status = "ok"
		feed.Message = fmt.Sprintf("Last update %s ago", time.Since(at).Round(time.Second))
	}
	results = append(results, feed)

	bot := serviceStatus{Name: "Telegram Bot", Status: "disabled", Message: "No bot token configured"}
	if s.opts.TelegramEnabled {
		bot.Status = "configured"
		bot.Message = "Bot is running"
	}
	results = append(results, bot)

	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"services":  results,
		"clients":   s.hub.Clients(),
		"timestamp": time.Now().Unix(),
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Prime Pips Exchange</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #0f172a; color: #e2e8f0; padding: 40px; }
h1 { color: #facc15; }
code { background: #1e293b; padding: 2px 6px; border-radius: 4px; }
</style>
</head>
<body>
<h1>Prime Pips Exchange</h1>
<p>Dashboard API is running. Uptime %s, %d live clients.</p>
<p>Health: <code>GET /api/health</code> &middot; Market: <code>GET /api/market</code> &middot; Live feed: <code>GET /ws</code></p>
</body>
</html>
`
