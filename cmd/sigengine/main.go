package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"options-signals/config"
	"options-signals/internal/indicator"
	"options-signals/internal/logger"
	"options-signals/internal/marketdata/bus"
	"options-signals/internal/marketdata/chain"
	"options-signals/internal/marketdata/stream"
	"options-signals/internal/metrics"
	"options-signals/internal/model"
	"options-signals/internal/notification"
	"options-signals/internal/pipeline"
	"options-signals/internal/strategy"
	redisstore "options-signals/internal/store/redis"
	sqlitestore "options-signals/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[sigengine] starting...")

	// ---- Load config from env ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[sigengine] config: %v", err)
	}
	slogger := logger.Init("sigengine", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[sigengine] watching %d symbols: %v", len(cfg.Symbols), cfg.Symbols)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Start SQLite writer (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[sigengine] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)
	log.Println("[sigengine] sqlite writer ready")

	// ---- Start Redis writer ----
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[sigengine] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
		redisWriter = nil
	} else {
		health.SetRedisConnected(true)
		log.Println("[sigengine] redis writer ready")
	}
	defer func() {
		if redisWriter != nil {
			redisWriter.Close()
		}
	}()

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Alert dispatcher ----
	var notifier notification.Notifier
	switch {
	case cfg.TelegramBotToken != "" && cfg.TelegramChatID != "":
		notifier = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		log.Println("[sigengine] alerts via Telegram")
	case cfg.WebhookURL != "":
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
		log.Println("[sigengine] alerts via webhook")
	default:
		notifier = notification.NewLogNotifier()
		log.Println("[sigengine] no alert channel configured, logging alerts")
	}

	dispatcher := notification.NewDispatcher(notifier, notification.DispatcherConfig{
		DedupWindow: cfg.DedupWindow,
		QueueSize:   cfg.AlertQueueSize,
	})
	dispatcher.OnDeduped = func() { prom.AlertsDeduped.Inc() }
	dispatcher.OnQueueDrop = func() { prom.AlertsDropped.Inc() }
	dispatcher.OnSent = func(err error) {
		if err != nil {
			prom.AlertSendErrors.Inc()
		} else {
			prom.AlertsSent.Inc()
		}
	}
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	// ---- Strategy evaluator → dispatcher + stores ----
	dispatch := func(sig model.StrategySignal) {
		prom.SignalsFired.Inc()
		slogger.Info("signal fired",
			slog.String("id", sig.ID.String()),
			slog.String("ticker", sig.Ticker),
			slog.Float64("strike", sig.Strike),
			slog.String("expiry", sig.Expiry),
			slog.String("rationale", sig.Rationale),
		)
		if err := sqlWriter.SaveSignal(sig); err != nil {
			log.Printf("[sigengine] persist signal %s: %v", sig.ID, err)
		}
		if redisWriter != nil {
			if err := redisWriter.PublishSignal(ctx, sig); err != nil {
				log.Printf("[sigengine] publish signal %s: %v", sig.ID, err)
			}
		}
		dispatcher.Dispatch(sig)
	}
	evaluator := strategy.NewEvaluator(cfg.RiskPerTrade, cfg.PortfolioValue, dispatch)

	// ---- Evaluation pipeline ----
	engine := pipeline.New(pipeline.Config{
		Indicator:      indicatorConfig(cfg),
		MaxLookback:    cfg.MaxLookback,
		IVLookbackDays: cfg.IVLookbackDays,
		Shards:         cfg.PipelineShards,
		ShardBuffer:    cfg.ShardBuffer,
	}, evaluator)
	engine.OnShardFull = func() { prom.ShardDrops.Inc() }
	engine.OnStaleTick = func() { prom.StaleTicks.Inc() }
	engine.OnEvalError = func(string, error) { prom.EvalErrors.Inc() }
	engine.OnEvaluated = func(d time.Duration) { prom.EvalDur.Observe(d.Seconds()) }

	// ---- Fan-out ticks to pipeline + SQLite + Redis ----
	tickCh := make(chan model.Tick, 10000)
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriber string) {
		prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
	}

	engineCh := fanout.Subscribe("pipeline")
	sqliteCh := fanout.Subscribe("sqlite")
	var redisCh <-chan model.Tick
	if redisWriter != nil {
		redisCh = fanout.Subscribe("redis")
	}

	sqlWriter.OnCommit = func(_ int, elapsed time.Duration) {
		prom.SQLiteCommitDur.Observe(elapsed.Seconds())
	}

	go fanout.Run(ctx, tickCh)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx, engineCh)
	}()
	go sqlWriter.Run(ctx, sqliteCh)
	if redisWriter != nil {
		go redisWriter.Run(ctx, redisCh)
	}

	// ---- Option chain syncer ----
	chainClient := chain.NewClient(cfg.ChainAPIURL)
	syncer := chain.NewSyncer(chainClient, cfg.Symbols, cfg.ChainSyncInterval,
		func(symbol string, quotes []model.OptionQuote, fetchedAt time.Time) {
			engine.ApplyChain(symbol, quotes, fetchedAt)
			if err := sqlWriter.WriteContracts(symbol, quotes, fetchedAt); err != nil {
				log.Printf("[sigengine] persist chain %s: %v", symbol, err)
			}
		})
	syncer.OnCycle = func(elapsed time.Duration) {
		prom.ChainSyncs.Inc()
		prom.ChainSyncDur.Observe(elapsed.Seconds())
		health.SetLastChainSync(time.Now())
	}
	syncer.OnError = func(symbol string, err error) {
		prom.ChainSyncErrors.Inc()
		log.Printf("[sigengine] chain sync %s: %v", symbol, err)
	}
	go syncer.Run(ctx)

	// ---- Metrics/health server with manual sync trigger ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, syncer.TriggerNow)
	metricsSrv.Start()

	// ---- WebSocket tick ingestion ----
	ingestor := stream.New(stream.Config{
		URL:     cfg.WSURL,
		Symbols: cfg.Symbols,
	}, func(t model.Tick) {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(t.Timestamp)
		select {
		case tickCh <- t:
		default:
			log.Printf("[sigengine] tick channel full, dropping %s", t.Symbol)
		}
	})
	ingestor.OnConnected = func(up bool) { health.SetWSConnected(up) }
	ingestor.OnReconnect = func() { prom.WSReconnects.Inc() }
	ingestor.OnMalformed = func() { prom.MalformedTicks.Inc() }

	go func() {
		if err := ingestor.Run(ctx); err != nil {
			log.Printf("[sigengine] ingest stopped: %v", err)
			health.SetWSConnected(false)
		}
	}()

	log.Println("[sigengine] pipeline ready")
	log.Printf("[sigengine] [WS ticks] → [windows/indicators] → [strategy] → [alerts], chain sync every %v", cfg.ChainSyncInterval)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[sigengine] shutdown signal received, cleaning up...")
	cancel()

	// Wait for the pipeline to finish in-flight evaluations and the
	// dispatcher to drain queued alerts, bounded by the shutdown budget.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	for _, done := range []<-chan struct{}{engineDone, dispatcherDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Println("[sigengine] shutdown timeout, exiting with work in flight")
		}
	}

	log.Println("[sigengine] shutdown complete.")
}

func indicatorConfig(cfg *config.Config) indicator.Config {
	return indicator.Config{
		RSIPeriod:  cfg.RSIPeriod,
		MACDFast:   cfg.MACDFast,
		MACDSlow:   cfg.MACDSlow,
		MACDSignal: cfg.MACDSignal,
	}
}
