// Package telegram is the admin's pocket console: platform stats, agent
// application review and alerts for new applications and withdrawals.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prime_pips/internal/logging"
	"prime_pips/internal/models"
	"prime_pips/internal/users"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Applications is the agent workflow the bot reviews.
type Applications interface {
	Pending(ctx context.Context) ([]models.AgentApplication, error)
	Review(ctx context.Context, id string, approve bool) (*models.AgentApplication, error)
}

type UserStats interface {
	Stats(ctx context.Context) (users.Stats, error)
}

type Bot struct {
	bot       *tele.Bot
	apps      Applications
	stats     UserStats
	adminID   int64
	startTime time.Time
	log       *zap.Logger
}

func NewBot(token string, adminID int64, apps Applications, stats UserStats, log *zap.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		bot:       b,
		apps:      apps,
		stats:     stats,
		adminID:   adminID,
		startTime: time.Now(),
		log:       logging.OrNop(log),
	}

	bot.setupHandlers()
	return bot, nil
}

// Start blocks while polling. Safe on a nil Bot.
func (b *Bot) Start() {
	if b == nil {
		return
	}
	b.log.Info("📱 Telegram bot started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	if b == nil {
		return
	}
	b.bot.Stop()
}

var (
	btnStats        = tele.Btn{Text: "📊 Stats", Unique: "stats"}
	btnApplications = tele.Btn{Text: "📝 Applications", Unique: "applications"}
	btnApprove      = tele.Btn{Unique: "approve_app"}
	btnReject       = tele.Btn{Unique: "reject_app"}
)

func (b *Bot) setupHandlers() {
	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || c.Sender().ID != b.adminID {
				return c.Send("⛔ Unauthorized")
			}
			return next(c)
		}
	})

	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/stats", b.handleStats)
	b.bot.Handle("/applications", b.handleApplications)

	b.bot.Handle(&btnStats, b.handleStats)
	b.bot.Handle(&btnApplications, b.handleApplications)
	b.bot.Handle(&btnApprove, b.reviewHandler(true))
	b.bot.Handle(&btnReject, b.reviewHandler(false))
}

func (b *Bot) handleStart(c tele.Context) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(btnStats, btnApplications))
	return c.Send("🏦 *Prime Pips admin*\n\nChoose an action:", menu, tele.ModeMarkdown)
}

func (b *Bot) handleStats(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	st, err := b.stats.Stats(ctx)
	if err != nil {
		b.log.Warn("⚠️ Stats failed", zap.Error(err))
		return c.Send("❌ Could not load stats: " + err.Error())
	}
	return c.Send(formatStats(st, time.Since(b.startTime), time.Now()), tele.ModeMarkdown)
}

func (b *Bot) handleApplications(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pending, err := b.apps.Pending(ctx)
	if err != nil {
		return c.Send("❌ Could not load applications: " + err.Error())
	}
	if len(pending) == 0 {
		return c.Send("📝 No pending applications")
	}
	for _, app := range pending {
		if err := c.Send(formatApplication(app), reviewMarkup(app.ID), tele.ModeMarkdown); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) reviewHandler(approve bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		app, err := b.apps.Review(ctx, c.Data(), approve)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ " + err.Error(), ShowAlert: true})
		}
		if err := c.Respond(&tele.CallbackResponse{Text: "Done"}); err != nil {
			b.log.Debug("Callback answer failed", zap.Error(err))
		}
		return c.Edit(formatApplication(*app), tele.ModeMarkdown)
	}
}

func reviewMarkup(appID string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("✅ Approve", btnApprove.Unique, appID),
		menu.Data("❌ Reject", btnReject.Unique, appID),
	))
	return menu
}

// NotifyApplication alerts the admin about a new agent application.
func (b *Bot) NotifyApplication(app models.AgentApplication) {
	if b == nil {
		return
	}
	b.send(formatApplication(app), reviewMarkup(app.ID))
}

// NotifyWithdrawal alerts the admin about a withdrawal waiting for payout.
func (b *Bot) NotifyWithdrawal(u models.User, tx models.Transaction) {
	if b == nil {
		return
	}
	b.send(formatWithdrawal(u, tx))
}

func (b *Bot) send(msg string, opts ...interface{}) {
	if b.adminID == 0 {
		return
	}
	opts = append(opts, tele.ModeMarkdown)
	if _, err := b.bot.Send(&tele.User{ID: b.adminID}, msg, opts...); err != nil {
		b.log.Warn("⚠️ Telegram send failed", zap.Error(err))
	}
}

var mdEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

func md(s string) string { return mdEscaper.Replace(s) }

func formatStats(st users.Stats, uptime time.Duration, now time.Time) string {
	return fmt.Sprintf(`📊 *Platform stats*

👥 Users: %d
🟢 Active: %d
⛔ Suspended: %d
🛡️ Admins: %d
💰 USD held: $%s

🕐 Uptime: %s
🕐 Updated: %s`,
		st.Total,
		st.Active,
		st.Suspended,
		st.Admins,
		st.TotalUSD.StringFixed(2),
		formatUptime(uptime),
		now.Format("15:04:05"),
	)
}

func formatApplication(app models.AgentApplication) string {
	status := map[models.ReviewStatus]string{
		models.ReviewPending:  "⏳ pending",
		models.ReviewApproved: "✅ approved",
		models.ReviewRejected: "❌ rejected",
	}[app.Status]

	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 *Agent application* (%s)\n\n", status)
	fmt.Fprintf(&sb, "👤 %s\n", md(app.FullName))
	fmt.Fprintf(&sb, "💼 %s\n", md(app.Occupation))
	fmt.Fprintf(&sb, "🌍 %s\n", md(strings.Trim(app.Location+", "+app.Country, ", ")))
	fmt.Fprintf(&sb, "📞 %s\n", md(app.PhoneNumber))
	if app.WhatsappNumber != "" {
		fmt.Fprintf(&sb, "💬 WhatsApp: %s\n", md(app.WhatsappNumber))
	}
	fmt.Fprintf(&sb, "✉️ %s\n", md(app.Email))
	if app.ActiveHours != "" {
		fmt.Fprintf(&sb, "🕐 Active: %s\n", md(app.ActiveHours))
	}
	fmt.Fprintf(&sb, "\n⏰ %s", app.SubmittedAt.Format("2006-01-02 15:04"))
	return sb.String()
}

func formatWithdrawal(u models.User, tx models.Transaction) string {
	dest := tx.Method
	if tx.Address != "" {
		dest += " → " + tx.Address
	}
	return fmt.Sprintf(`🏧 *Withdrawal request*

👤 %s (%s)
💰 %s %s
💸 Fee: %s %s
📤 Net: %s %s
🏦 %s

⏰ %s`,
		md(u.FullName()), md(u.Email),
		tx.Amount, tx.Currency,
		tx.Fee, tx.Currency,
		tx.Net, tx.Currency,
		md(dest),
		tx.CreatedAt.Format("15:04:05"),
	)
}

func formatUptime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
