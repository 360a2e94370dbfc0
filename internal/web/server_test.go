package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prime_pips/internal/accounts"
	"prime_pips/internal/agents"
	"prime_pips/internal/auth"
	"prime_pips/internal/jsonbin/jsonbintest"
	"prime_pips/internal/market"
	"prime_pips/internal/messages"
	"prime_pips/internal/models"
	"prime_pips/internal/notify"
	"prime_pips/internal/store/storetest"
	"prime_pips/internal/users"
	"prime_pips/internal/wallet"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.HashCost = bcrypt.MinCost
}

type env struct {
	srv  *httptest.Server
	fake *jsonbintest.Server
	hub  *Hub
	feed *market.Feed
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	st, fake := storetest.New(t)

	feed := market.NewFeed(market.NewSimulated(7), time.Second, log)
	authSvc := auth.NewService(st.Users, auth.Config{
		SessionTTL: time.Hour,
		Admin:      auth.Credentials{Email: "admin@primepips.com", Password: "admin123"},
		Demo:       auth.Credentials{Email: "demo@primepips.com", Password: "demo123"},
	}, log)
	walletSvc := wallet.NewService(st.Users, st.Transactions, feed, log)
	walletSvc.SetCallbacks(nil, authSvc.SyncUser)
	notifySvc := notify.NewService(st.Notifications, log)
	usersSvc := users.NewService(st.Users, st.Notifications, authSvc, log)
	usersSvc.SetCallbacks(authSvc.SyncUser, authSvc.DropUser)

	hub := NewHub([]string{"*"}, log)
	notifySvc.OnCreate(hub.PublishNotification)
	feed.Subscribe(hub.PublishMarket)

	s := NewServer(Services{
		Store:    st,
		Auth:     authSvc,
		Wallet:   walletSvc,
		Market:   feed,
		Agents:   agents.NewService(st.Applications, log),
		Accounts: accounts.NewService(st.Accounts, log),
		Notify:   notifySvc,
		Messages: messages.NewService(st.Messages, log),
		Users:    usersSvc,
	}, hub, Options{}, log)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &env{srv: srv, fake: fake, hub: hub, feed: feed}
}

func (e *env) call(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func (e *env) login(t *testing.T, email, password string) string {
	t.Helper()
	code, body := e.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, code, string(body))
	var sess auth.Session
	require.NoError(t, json.Unmarshal(body, &sess))
	return sess.Token
}

func TestRegisterAndWalletFlow(t *testing.T) {
	e := newEnv(t)

	code, body := e.call(t, http.MethodPost, "/api/auth/register", "", auth.RegisterInput{
		Email: "alice@example.com", Password: "correct-horse", FirstName: "Alice", LastName: "Smith",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var sess auth.Session
	require.NoError(t, json.Unmarshal(body, &sess))
	assert.Empty(t, sess.User.PasswordHash)

	code, body = e.call(t, http.MethodPost, "/api/wallets/deposit", sess.Token, map[string]any{"amount": 50, "method": "bank"})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = e.call(t, http.MethodPost, "/api/wallets/withdraw", sess.Token, map[string]any{"currency": "USDC", "amount": 5})
	assert.Equal(t, http.StatusBadRequest, code, "below the minimum")
	assert.Contains(t, string(body), "minimum withdrawal")

	code, body = e.call(t, http.MethodGet, "/api/auth/me", sess.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var me models.User
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, "150", me.Wallets.Balance("USDC").String())

	code, body = e.call(t, http.MethodGet, "/api/wallets/history?type=deposit", sess.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var txs []models.Transaction
	require.NoError(t, json.Unmarshal(body, &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "bank", txs[0].Method)

	code, _ = e.call(t, http.MethodPost, "/api/auth/register", "", auth.RegisterInput{
		Email: "ALICE@example.com", Password: "correct-horse", FirstName: "A", LastName: "S",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = e.call(t, http.MethodPost, "/api/auth/logout", sess.Token, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = e.call(t, http.MethodGet, "/api/wallets", sess.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAccessControl(t *testing.T) {
	e := newEnv(t)

	code, _ := e.call(t, http.MethodGet, "/api/wallets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	demo := e.login(t, "demo@primepips.com", "demo123")
	code, _ = e.call(t, http.MethodGet, "/api/admin/users", demo, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "demo@primepips.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	admin := e.login(t, "admin@primepips.com", "admin123")
	code, body := e.call(t, http.MethodGet, "/api/admin/overview", admin, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var ov users.Overview
	require.NoError(t, json.Unmarshal(body, &ov))
	assert.Equal(t, 2, ov.Stats.Total)
	assert.Equal(t, 1, ov.Stats.Admins)

	code, body = e.call(t, http.MethodPost, "/api/admin/users/user-001/status", admin, map[string]string{"status": "suspended"})
	require.Equal(t, http.StatusOK, code, string(body))

	code, _ = e.call(t, http.MethodGet, "/api/wallets", demo, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "suspension ends live sessions")
	code, _ = e.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "demo@primepips.com", "password": "demo123"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAgentApplicationReview(t *testing.T) {
	e := newEnv(t)
	demo := e.login(t, "demo@primepips.com", "demo123")
	admin := e.login(t, "admin@primepips.com", "admin123")

	code, body := e.call(t, http.MethodPost, "/api/agents/applications", demo, agents.Form{
		FullName: "Demo User", Occupation: "Trader", Email: "demo@primepips.com",
		PhoneNumber: "+1 555 0100", Country: "Ghana",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var app models.AgentApplication
	require.NoError(t, json.Unmarshal(body, &app))

	code, _ = e.call(t, http.MethodPost, "/api/agents/applications/"+app.ID+"/review", demo, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.call(t, http.MethodPost, "/api/agents/applications/"+app.ID+"/review", admin, map[string]string{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.call(t, http.MethodPost, "/api/agents/applications/"+app.ID+"/review", admin, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, code, string(body))

	code, _ = e.call(t, http.MethodPost, "/api/agents/applications/"+app.ID+"/review", admin, map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = e.call(t, http.MethodGet, "/api/agents", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.AgentApplication
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, models.ReviewApproved, list[0].Status)
}

func TestNotificationsReachWebsocket(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, "admin@primepips.com", "admin123")
	demo := e.login(t, "demo@primepips.com", "demo123")

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "connection_init", ev.Type)
	assert.Equal(t, 1, e.hub.Clients())

	code, body := e.call(t, http.MethodPost, "/api/notifications", admin, notify.Input{
		Message: "only for demo", Type: models.NotificationSpecific, TargetUsers: []string{"user-001"},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	code, body = e.call(t, http.MethodPost, "/api/notifications", admin, notify.Input{Message: "Maintenance at midnight"})
	require.Equal(t, http.StatusCreated, code, string(body))

	var msg struct {
		Type string              `json:"type"`
		Data models.Notification `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, "Maintenance at midnight", msg.Data.Message, "targeted notifications are not broadcast")

	code, body = e.call(t, http.MethodGet, "/api/notifications", demo, nil)
	require.Equal(t, http.StatusOK, code)
	var seen []models.Notification
	require.NoError(t, json.Unmarshal(body, &seen))
	assert.Len(t, seen, 2)

	require.NoError(t, e.feed.Refresh(t.Context()))
	var tick struct {
		Type string `json:"type"`
		Data struct {
			Tickers []struct {
				Pair        string `json:"pair"`
				VolumeLabel string `json:"volumeLabel"`
			} `json:"tickers"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&tick))
	assert.Equal(t, "market", tick.Type)
	require.Len(t, tick.Data.Tickers, 4)
	assert.Equal(t, "BTC/USDT", tick.Data.Tickers[0].Pair)
}

func TestTiersListsAssets(t *testing.T) {
	e := newEnv(t)

	code, body := e.call(t, http.MethodGet, "/api/tiers", "", nil)
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Tiers  []wallet.Tier  `json:"tiers"`
		Assets []wallet.Asset `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Tiers, wallet.MaxTier)
	require.Len(t, out.Assets, 6)
	assert.Equal(t, "BTC", out.Assets[1].Code)
	assert.Equal(t, "Bitcoin", out.Assets[1].Name)
}

func TestMessagesAndOrders(t *testing.T) {
	e := newEnv(t)
	demo := e.login(t, "demo@primepips.com", "demo123")

	code, body := e.call(t, http.MethodGet, "/api/messages", demo, nil)
	require.Equal(t, http.StatusOK, code)
	var box messages.Inbox
	require.NoError(t, json.Unmarshal(body, &box))
	assert.Len(t, box.Messages, 3)
	assert.Equal(t, 1, box.Unread)
	assert.Equal(t, "1 day ago", box.Messages[0].Age)

	code, _ = e.call(t, http.MethodPost, "/api/messages", demo, map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.call(t, http.MethodPost, "/api/market/order", demo, map[string]any{
		"pair": "ETH/USDT", "side": "sell", "amount": "2", "price": "3000",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var o market.Order
	require.NoError(t, json.Unmarshal(body, &o))
	assert.Equal(t, "6000", o.Total.String())

	code, _ = e.call(t, http.MethodPost, "/api/market/order", demo, map[string]any{"pair": "ETH/USDT"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndUpstreamErrors(t *testing.T) {
	e := newEnv(t)
	demo := e.login(t, "demo@primepips.com", "demo123")

	code, body := e.call(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Contains(t, string(body), `"JSONBin"`)

	code, body = e.call(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "Prime Pips Exchange")

	e.fake.FailNext(http.MethodGet, http.StatusInternalServerError)
	code, _ = e.call(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = e.call(t, http.MethodGet, "/api/wallets", demo, nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, string(body), "failed to fetch bin")
}
