package web

import (
	"fmt"
	"net/http"

	"prime_pips/internal/accounts"
	"prime_pips/internal/agents"
	"prime_pips/internal/auth"
	"prime_pips/internal/market"
	"prime_pips/internal/models"
	"prime_pips/internal/notify"
	"prime_pips/internal/users"
	"prime_pips/internal/wallet"

	"github.com/shopspring/decimal"
)

// auth and settings

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.svc.Auth.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.svc.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	s.svc.Auth.Logout(sess.Token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	fresh, err := s.svc.Auth.Refresh(r.Context(), sess.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fresh.User)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in auth.ProfileInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.svc.Auth.UpdateProfile(r.Context(), sess.User.ID, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in auth.PasswordInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.Auth.ChangePassword(r.Context(), sess.User.ID, in); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wallets

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tiers":  wallet.Tiers(),
		"limits": wallet.DisplayLimits(),
		"assets": wallet.Assets(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	p, err := s.svc.Wallet.Portfolio(r.Context(), sess.User.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"method"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	tx, err := s.svc.Wallet.Deposit(r.Context(), sess.User.ID, in.Amount, in.Method)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in struct {
		Currency string          `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
		Method   string          `json:"method"`
		Address  string          `json:"address"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	tx, err := s.svc.Wallet.Withdraw(r.Context(), sess.User.ID, in.Currency, in.Amount, in.Method, in.Address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in struct {
		Recipient string          `json:"recipient"`
		Currency  string          `json:"currency"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	tx, err := s.svc.Wallet.Transfer(r.Context(), sess.User.ID, in.Recipient, in.Currency, in.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	typ := models.TransactionType(r.URL.Query().Get("type"))
	txs, err := s.svc.Wallet.History(r.Context(), sess.User.ID, typ)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// market

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, marketEvent(s.svc.Market.Snapshot()))
}

type tickerView struct {
	market.Ticker
	VolumeLabel string `json:"volumeLabel"`
}

func marketEvent(tickers []market.Ticker) map[string]any {
	out := make([]tickerView, len(tickers))
	for i, t := range tickers {
		out[i] = tickerView{Ticker: t, VolumeLabel: t.VolumeLabel()}
	}
	return map[string]any{"tickers": out}
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in market.OrderInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	o, err := s.svc.Market.PlaceOrder(sess.User, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// agents

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Agents.Approved(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var form agents.Form
	if err := decode(r, &form); err != nil {
		s.writeError(w, err)
		return
	}
	app, err := s.svc.Agents.Submit(r.Context(), sess.User, form)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var (
		list []models.AgentApplication
		err  error
	)
	if sess.User.IsAdmin() {
		list, err = s.svc.Agents.List(r.Context())
	} else {
		list, err = s.svc.Agents.ListFor(r.Context(), sess.User.ID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in struct {
		Status models.ReviewStatus `json:"status"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if in.Status != models.ReviewApproved && in.Status != models.ReviewRejected {
		s.writeError(w, fmt.Errorf("%w: status must be approved or rejected", models.ErrInvalidInput))
		return
	}
	app, err := s.svc.Agents.Review(r.Context(), r.PathValue("id"), in.Status == models.ReviewApproved)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// accounts

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	list, err := s.svc.Accounts.List(r.Context(), sess.User)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleApprovedAccounts(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	list, err := s.svc.Accounts.Approved(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in accounts.Input
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	acc, err := s.svc.Accounts.Create(r.Context(), sess.User, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in accounts.Input
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	acc, err := s.svc.Accounts.Update(r.Context(), sess.User, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	if err := s.svc.Accounts.Delete(r.Context(), sess.User, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApproveAccount(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	acc, err := s.svc.Accounts.Approve(r.Context(), sess.User, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleRejectAccount(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	acc, err := s.svc.Accounts.Reject(r.Context(), sess.User, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// notifications

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	list, err := s.svc.Notify.Visible(r.Context(), sess.User)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in notify.Input
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	n, err := s.svc.Notify.Create(r.Context(), sess.User, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleNotificationStats(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	st, err := s.svc.Notify.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	if err := s.svc.Notify.Delete(r.Context(), sess.User, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadNotification(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	if err := s.svc.Notify.MarkRead(r.Context(), sess.User, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messages

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	box, err := s.svc.Messages.Inbox(r.Context(), sess.User)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in struct {
		Content string `json:"content"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	m, err := s.svc.Messages.Send(r.Context(), sess.User, in.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleOpenMessage(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	m, err := s.svc.Messages.Open(r.Context(), sess.User, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// admin

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	ov, err := s.svc.Users.Overview(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	list, err := s.svc.Users.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in users.CreateInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.svc.Users.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	u, err := s.svc.Users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var p users.Patch
	if err := decode(r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.svc.Users.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	id := r.PathValue("id")
	if id == sess.User.ID {
		s.writeError(w, fmt.Errorf("%w: cannot delete your own account", models.ErrInvalidInput))
		return
	}
	if err := s.svc.Users.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	var in struct {
		Status models.UserStatus `json:"status"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.svc.Users.SetStatus(r.Context(), r.PathValue("id"), in.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
