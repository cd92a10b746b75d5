package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	config "calagent/app/configs"
	"calagent/app/core/agent"
	"calagent/app/core/auth"
	"calagent/app/core/calendar"
	"calagent/app/core/interaction/cli"
	"calagent/app/core/interaction/gateway"
	"calagent/app/core/interaction/telegram"
	"calagent/app/core/interaction/web"
	"calagent/app/core/nlu"
	"calagent/app/core/queue"
	"calagent/app/core/scheduler"
	"calagent/app/core/speech"
	"calagent/app/core/store"
	"calagent/app/core/trace"
	"calagent/app/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfgMgr, err := config.NewManager(config.DefaultPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgMgr.Get()

	if err := logger.Init(cfg.Storage.LogDir); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger.Info("[Main] %s starting", cfg.Agent.Name)

	database, err := store.NewSQLiteDB(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	tokenStore := store.NewTokenStore(database)
	sessionStore := store.NewSessionStore(database)
	tracer := trace.NewSQLiteRecorder(database)

	oauth, err := auth.NewOAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	if err != nil {
		log.Fatalf("Failed to configure Google OAuth: %v", err)
	}
	factory := auth.NewCalendarFactory(oauth, tokenStore)

	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		logger.Error("[Main] unknown time zone %q, using local: %v", cfg.Calendar.TimeZone, err)
		loc = time.Local
	}
	executor := calendar.NewExecutor(
		factory,
		loc,
		time.Duration(cfg.Calendar.DefaultDurationMin)*time.Minute,
		int64(cfg.Calendar.MaxResults),
	)

	completer, err := nlu.NewOpenAICompleter(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	if err != nil {
		log.Fatalf("Failed to configure language model client: %v", err)
	}
	classifier := nlu.NewClassifier(completer)

	var transcriber speech.Transcriber
	if t, err := speech.NewWhisperTranscriber(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.TranscribeModel); err != nil {
		logger.Error("[Main] transcription disabled: %v", err)
	} else {
		transcriber = t
	}

	calAgent := agent.NewAgent(cfg.Agent.Name, classifier, executor, sessionStore, factory, tracer, cfg.Server.BaseURL)

	gw := gateway.NewGateway(calAgent)
	execQueue := queue.New(64)
	gw.SetExecutionQueue(execQueue, gateway.QueueOptions{
		Enabled:        true,
		EnqueueTimeout: 5 * time.Second,
		AttemptTimeout: time.Duration(cfg.Server.ResponseTimeout) * time.Second,
		MaxRetries:     1,
		RetryDelay:     time.Second,
	})

	sched := scheduler.New()
	if err := sched.Register(scheduler.TokenRefreshJob(factory)); err != nil {
		log.Fatalf("Failed to register token refresh job: %v", err)
	}
	retention := time.Duration(cfg.Trace.RetentionDays) * 24 * time.Hour
	if err := sched.Register(scheduler.TraceSweepJob(tracer, retention)); err != nil {
		log.Fatalf("Failed to register trace sweep job: %v", err)
	}

	health := func() interface{} {
		return map[string]interface{}{
			"gateway": gw.Health(),
			"jobs":    sched.Snapshot(),
		}
	}
	calAgent.Command().SetStatusProvider(func(ctx context.Context) map[string]interface{} {
		return map[string]interface{}{
			"gateway": gw.Health(),
			"jobs":    sched.Snapshot(),
		}
	})

	webServer := web.NewServer(web.Config{
		Port:            cfg.Server.Port,
		BaseURL:         cfg.Server.BaseURL,
		SessionSecret:   cfg.Server.SessionSecret,
		ResponseTimeout: time.Duration(cfg.Server.ResponseTimeout) * time.Second,
	}, oauth, tokenStore, transcriber, health)
	gw.RegisterChannel(webServer)

	if cfg.Agent.EnableCLI {
		gw.RegisterChannel(cli.NewCLIChannel(cfg.Agent.CLIUserID))
	}
	if cfg.Telegram.BotToken != "" {
		gw.RegisterChannel(telegram.NewChannel(telegram.Config{
			BotToken:       cfg.Telegram.BotToken,
			PollInterval:   time.Duration(cfg.Telegram.PollIntervalSec) * time.Second,
			TimeoutSeconds: cfg.Telegram.TimeoutSeconds,
		}, transcriber))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := execQueue.Start(ctx, 1); err != nil {
		log.Fatalf("Failed to start execution queue: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	gatewayDone := make(chan error, 1)
	go func() {
		gatewayDone <- gw.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("[Main] received signal %s, shutting down", sig)
	case err := <-gatewayDone:
		if err != nil {
			logger.Error("[Main] gateway stopped: %v", err)
		}
	}

	cancel()
	if err := sched.Stop(5 * time.Second); err != nil {
		logger.Error("[Main] scheduler stop: %v", err)
	}
	if err := execQueue.Stop(10 * time.Second); err != nil {
		logger.Error("[Main] queue stop: %v", err)
	}
	logger.Info("[Main] shutdown complete")
}
