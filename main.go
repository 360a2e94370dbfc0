package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"prime_pips/config"
	"prime_pips/internal/accounts"
	"prime_pips/internal/agents"
	"prime_pips/internal/auth"
	"prime_pips/internal/jsonbin"
	"prime_pips/internal/logging"
	"prime_pips/internal/market"
	"prime_pips/internal/messages"
	"prime_pips/internal/notify"
	"prime_pips/internal/store"
	"prime_pips/internal/telegram"
	"prime_pips/internal/users"
	"prime_pips/internal/wallet"
	"prime_pips/internal/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API, market feed and admin bot",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context()) },
	}

	root := &cobra.Command{
		Use:          "primepips",
		Short:        "Prime Pips trading dashboard backend",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, binsCmd())
	return root
}

func binsCmd() *cobra.Command {
	bins := &cobra.Command{
		Use:   "bins",
		Short: "Show the registered bin id of every collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			seen := make(map[string]bool)
			for _, kind := range reg.Kinds() {
				id, _ := reg.Get(kind)
				fmt.Fprintf(out, "%-18s %s\n", kind, id)
				seen[kind] = true
			}
			for _, kind := range config.BinKinds {
				if !seen[kind] {
					fmt.Fprintf(out, "%-18s (not created)\n", kind)
				}
			}
			return nil
		},
	}

	bins.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create every missing bin and record its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer log.Sync()

			st, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			ids, err := st.EnsureBins(cmd.Context())
			if err != nil {
				return err
			}
			kinds := make([]string, 0, len(ids))
			for k := range ids {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", k, ids[k])
			}
			return nil
		},
	})
	return bins
}

func openRegistry(cfg *config.Config) (*jsonbin.Registry, error) {
	reg, err := jsonbin.NewRegistry(cfg.BinRegistryPath)
	if err != nil {
		return nil, err
	}
	if err := reg.Seed(cfg.BinIDs); err != nil {
		return nil, err
	}
	return reg, nil
}

func openStore(cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	if cfg.JSONBinAccessKey == "" {
		log.Warn("⚠️ JSONBIN_ACCESS_KEY is empty, requests will be rejected upstream")
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return nil, err
	}
	client := jsonbin.NewClient(cfg.JSONBinBaseURL, cfg.JSONBinAccessKey,
		jsonbin.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}))
	return store.New(client, reg, log), nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("🚀 Starting Prime Pips...", zap.Bool("envFile", cfg.EnvFileLoaded))

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	var source market.Source = market.NewSimulated(time.Now().UnixNano())
	if cfg.MarketSource == config.MarketBinance {
		source = market.NewBinance()
	}
	feed := market.NewFeed(source, cfg.MarketInterval, log)

	authSvc := auth.NewService(st.Users, auth.Config{
		SessionTTL: cfg.SessionTTL,
		Admin:      auth.Credentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword},
		Demo:       auth.Credentials{Email: cfg.DemoEmail, Password: cfg.DemoPassword},
	}, log)
	walletSvc := wallet.NewService(st.Users, st.Transactions, feed, log)
	agentsSvc := agents.NewService(st.Applications, log)
	accountsSvc := accounts.NewService(st.Accounts, log)
	notifySvc := notify.NewService(st.Notifications, log)
	messagesSvc := messages.NewService(st.Messages, log)
	usersSvc := users.NewService(st.Users, st.Notifications, authSvc, log)

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, cfg.TelegramAdminID, agentsSvc, usersSvc, log)
		if err != nil {
			log.Warn("⚠️ Telegram bot disabled", zap.Error(err))
			bot = nil
		}
	}

	hub := web.NewHub(cfg.AllowedOrigins, log)

	walletSvc.SetCallbacks(bot.NotifyWithdrawal, authSvc.SyncUser)
	usersSvc.SetCallbacks(authSvc.SyncUser, authSvc.DropUser)
	agentsSvc.OnSubmit(bot.NotifyApplication)
	notifySvc.OnCreate(hub.PublishNotification)
	feed.Subscribe(hub.PublishMarket)

	server := web.NewServer(web.Services{
		Store:    st,
		Auth:     authSvc,
		Wallet:   walletSvc,
		Market:   feed,
		Agents:   agentsSvc,
		Accounts: accountsSvc,
		Notify:   notifySvc,
		Messages: messagesSvc,
		Users:    usersSvc,
	}, hub, web.Options{
		Port:            cfg.Port,
		AllowedOrigins:  cfg.AllowedOrigins,
		TelegramEnabled: bot != nil,
	}, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go feed.Run(ctx)
	server.Start()
	go bot.Start()

	log.Info("✅ All systems initialized",
		zap.String("dashboard", "http://localhost:"+cfg.Port),
		zap.String("market", source.Name()),
		zap.Bool("telegram", bot != nil))

	<-ctx.Done()

	log.Info("🛑 Shutting down...")
	bot.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown error", zap.Error(err))
	}

	log.Info("👋 Goodbye!")
	return nil
}
