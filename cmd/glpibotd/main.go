package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apiPkg "github.com/glpibot/glpibot/internal/api"
	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/classifier"
	"github.com/glpibot/glpibot/internal/config"
	slackconn "github.com/glpibot/glpibot/internal/connector/slack"
	"github.com/glpibot/glpibot/internal/connector/telegram"
	"github.com/glpibot/glpibot/internal/connector/webhook"
	"github.com/glpibot/glpibot/internal/conversation"
	"github.com/glpibot/glpibot/internal/glpi"
	"github.com/glpibot/glpibot/internal/helpdesk"
	"github.com/glpibot/glpibot/internal/journal"
	"github.com/glpibot/glpibot/internal/logbuf"
	"github.com/glpibot/glpibot/internal/notifier"
	"github.com/glpibot/glpibot/internal/poller"
	"github.com/glpibot/glpibot/internal/scheduler"
	"github.com/glpibot/glpibot/internal/session"
)

const pruneJob = "journal-prune"

func main() {
	configPath := flag.String("config", "", "Path to config JSON file (default: environment and .env)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf, slog.LevelDebug))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("glpibotd starting", "glpi_url", cfg.GLPI.URL, "poll_interval", cfg.Poll.Interval.Std())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Helpdesk backend and classifier
	backend := glpi.New(cfg.GLPI.URL, cfg.GLPI.AppToken,
		glpi.WithTimeout(cfg.GLPI.Timeout.Std()),
		glpi.WithTicketRange(cfg.GLPI.TicketRange),
	)

	var embedder classifier.Embedder
	if cfg.Embeddings.APIKey != "" {
		var opts []classifier.EmbedderOption
		if cfg.Embeddings.BaseURL != "" {
			opts = append(opts, classifier.WithBaseURL(cfg.Embeddings.BaseURL))
		}
		if cfg.Embeddings.Model != "" {
			opts = append(opts, classifier.WithModel(cfg.Embeddings.Model))
		}
		embedder = classifier.NewOpenAIEmbedder(cfg.Embeddings.APIKey, opts...)
	} else {
		logger.Warn("no embeddings api key, tickets will be categorized as " + classifier.Fallback)
	}
	cls := classifier.New(embedder, classifier.WithLogger(logger.With("component", "classifier")))

	hd := helpdesk.New(backend, cls, logger.With("component", "helpdesk"))

	// 2. Shared in-memory state
	sessions := session.NewStore()
	states := conversation.NewStateStore()
	snapshots := changes.NewSnapshotStore()

	// 3. Notification journal
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.DataDir, "notifications.db")
	journalStore, err := journal.Open(dbPath)
	if err != nil {
		logger.Error("failed to open notification journal", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer journalStore.Close()

	// 4. Telegram connector driving the conversation machine
	machine := conversation.NewMachine(hd, sessions, states, logger.With("component", "conversation"))
	tgConn, err := telegram.New(
		telegram.Config{
			Token:     cfg.Telegram.Token,
			AllowFrom: cfg.Telegram.AllowFrom,
		},
		machine.HandleInbound,
		logger.With("connector", "telegram"),
	)
	if err != nil {
		logger.Error("failed to init telegram connector", "error", err)
		os.Exit(1)
	}

	// 5. Notifier, optionally mirrored to Slack
	notifyOpts := []notifier.Option{
		notifier.WithJournal(journalStore),
		notifier.WithLogger(logger.With("component", "notifier")),
	}
	if cfg.Slack != nil {
		mirror, err := slackconn.New(slackconn.Config{
			BotToken: cfg.Slack.Token,
			Channel:  cfg.Slack.Channel,
		}, logger.With("connector", "slack"))
		if err != nil {
			logger.Error("failed to init slack mirror", "error", err)
			os.Exit(1)
		}
		if err := mirror.Check(ctx); err != nil {
			logger.Warn("slack mirror auth check failed", "error", err)
		}
		notifyOpts = append(notifyOpts, notifier.WithMirror(mirror))
	}
	n := notifier.New(tgConn, hd, notifyOpts...)

	// 6. Poll loop and housekeeping on the scheduler
	sched := scheduler.New(logger.With("component", "scheduler"))
	poll := poller.New(hd, sessions, snapshots, n, logger.With("component", "poller"))
	if err := poll.Register(ctx, sched, cfg.Poll.Interval.Std()); err != nil {
		logger.Error("failed to schedule poll loop", "error", err)
		os.Exit(1)
	}
	retention := cfg.Poll.JournalRetention.Std()
	if err := sched.AddJob(pruneJob, "@hourly", func() {
		pruned, err := journalStore.Prune(time.Now().Add(-retention))
		if err != nil {
			logger.Warn("journal prune failed", "error", err)
			return
		}
		if pruned > 0 {
			logger.Info("journal pruned", "entries", pruned)
		}
	}); err != nil {
		logger.Error("failed to schedule journal prune", "error", err)
		os.Exit(1)
	}

	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })
	go safeGo(logger, "poll-trigger", func() { poll.RunTriggered(ctx) })
	go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
	logger.Info("telegram connector started")

	// 7. Start API server
	apiSvc := &botService{
		sessions:  sessions,
		states:    states,
		snapshots: snapshots,
		poller:    poll,
		sched:     sched,
		journal:   journalStore,
		logger:    logger.With("component", "api"),
	}
	apiSrv := apiPkg.NewServer(apiSvc, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	if cfg.Webhook != nil {
		hookLog := logger.With("connector", "webhook")
		hook := webhook.New(webhook.Config{
			Secret:      cfg.Webhook.Secret,
			BearerToken: cfg.Webhook.BearerToken,
		}, pollOnPush(poll, hookLog), hookLog)
		apiSrv.Mount(webhook.Path, hook)
		logger.Info("glpi webhook enabled", "path", webhook.Path)
	}

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	tgConn.Stop()
	logoutAll(sessions, hd, logger)
	logger.Info("glpibotd stopped")
}

// logoutAll closes every backend session so tokens do not outlive the process.
func logoutAll(sessions *session.Store, hd *helpdesk.Service, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range sessions.List() {
		if err := hd.Logout(ctx, s); err != nil {
			logger.Debug("logout on shutdown failed", "chat_id", s.ChatID, "error", err)
		}
	}
}

// safeGo runs fn with panic recovery.
// pollOnPush returns the webhook callback. The pushed event is logged with
// its ticket so it can be found next to the cycle it triggered.
func pollOnPush(p interface{ Trigger() }, logger *slog.Logger) webhook.TriggerFunc {
	return func(_ context.Context, ev webhook.Event) {
		attrs := []any{"event", ev.Event}
		if ev.TicketID != 0 {
			attrs = append(attrs, "ticket", ev.TicketID)
		}
		logger.Info("glpi push received, polling now", attrs...)
		p.Trigger()
	}
}

func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
