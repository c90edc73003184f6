package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LORD-SANTINO/Number-bot/internal/bot"
	"github.com/LORD-SANTINO/Number-bot/internal/config"
	"github.com/LORD-SANTINO/Number-bot/internal/conversation"
	"github.com/LORD-SANTINO/Number-bot/internal/db"
	"github.com/LORD-SANTINO/Number-bot/internal/logger"
	"github.com/LORD-SANTINO/Number-bot/internal/metrics"
	"github.com/LORD-SANTINO/Number-bot/internal/notify"
	"github.com/LORD-SANTINO/Number-bot/internal/provider"
	"github.com/LORD-SANTINO/Number-bot/internal/repo"
)

const mockSenderNumber = "+15550000000"

func main() {
	cfg := config.MustLoad()

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := db.ApplyMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal("migrations", zap.Error(err))
		}
	}

	pool := db.MustConnect(ctx, cfg.DatabaseURL)
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	var gateway provider.Gateway
	sender := cfg.TwilioPhoneNumber
	switch cfg.SMSProvider {
	case config.ProviderMock:
		gateway = provider.NewMock()
		if sender == "" {
			sender = mockSenderNumber
		}
	default:
		gateway = provider.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, log)
	}
	gateway = provider.NewInstrumented(gateway, collector)

	trial := detectTrial(ctx, gateway, log)

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal("bot init", zap.Error(err))
	}
	botAPI.Debug = false

	checks := map[string]metrics.Check{"postgres": pool.Ping}

	var sinks notify.Multi
	if cfg.ChannelID != "" {
		ch, err := notify.NewTelegram(botAPI, cfg.ChannelID, log)
		if err != nil {
			log.Fatal("audit channel", zap.Error(err))
		}
		sinks = append(sinks, ch)
	}
	if cfg.NATSURL != "" {
		ns, nc, err := notify.DialNATS(cfg.NATSURL, cfg.NATSAuditSubject, log)
		if err != nil {
			log.Fatal("audit nats", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		sinks = append(sinks, ns)
	}
	var audit notify.Sink = notify.Nop{}
	if len(sinks) > 0 {
		audit = sinks
	}

	var store conversation.Store = conversation.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := conversation.NewRedisStore(ctx, cfg.RedisURL, cfg.ConversationTTL)
		if err != nil {
			log.Fatal("conversation store", zap.Error(err))
		}
		defer rs.Close()
		store = rs
		checks["redis"] = rs.Ping
	}

	machine := conversation.NewMachine(conversation.Deps{
		Sessions: repo.NewSessions(pool),
		Verified: repo.NewVerified(pool),
		Usage:    repo.NewUsage(pool),
		Messages: repo.NewMessages(pool),
		Gateway:  gateway,
		Audit:    audit,
		Metrics:  collector,
	}, conversation.Settings{
		Trial:        trial,
		MonthlyLimit: cfg.MaxMonthlyCost,
		SMSCost:      cfg.SMSCostEstimate,
		NumberCost:   cfg.NumberCost,
		Region:       cfg.NumberRegion,
		SenderNumber: sender,
	}, log)

	h := bot.NewHandler(botAPI, repo.NewUsers(pool), machine, store, collector, log)
	dispatcher := bot.NewDispatcher(h.HandleUpdate, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := botAPI.GetUpdatesChan(u)

		log.Info("bot started",
			zap.String("username", botAPI.Self.UserName),
			zap.String("provider", cfg.SMSProvider),
			zap.Bool("trial", trial))

		go func() {
			<-gctx.Done()
			botAPI.StopReceivingUpdates()
		}()
		return dispatcher.Run(gctx, updates)
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.NewRouter(reg, checks),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("ops http listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", zap.Error(err))
		return
	}
	log.Info("shutdown")
}

// detectTrial asks the provider once at startup. When the account cannot
// be read the bot assumes trial restrictions.
func detectTrial(ctx context.Context, gw provider.Gateway, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := gw.FetchAccountInfo(ctx)
	if err != nil {
		log.Warn("fetch account info, assuming trial", zap.Error(err))
		return true
	}
	return info.IsTrial()
}
