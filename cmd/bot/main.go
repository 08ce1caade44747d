package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/api"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/broker"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/config"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/database"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/events"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/notify"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/schedule"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/trading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "db/migrations"
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	var brk broker.Broker = broker.NewKiwoom(
		cfg.Kiwoom.BaseURL(),
		cfg.Kiwoom.AppKey,
		cfg.Kiwoom.AppSecret,
		cfg.Kiwoom.AccountNo,
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		brk = broker.NewQuoteCache(brk, rdb, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		log.Printf("quote cache enabled via redis at %s", cfg.Redis.Addr)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Trading.NumSplits, seoul)
		if err != nil {
			log.Fatalf("telegram setup failed: %v", err)
		}
		notifier = tg
	}

	var producer *events.Producer
	if cfg.Kafka.Enabled {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		log.Printf("trade events enabled on topic %s", cfg.Kafka.Topic)
	}

	service := trading.NewService(cfg.Trading, db, brk, seoul)
	dispatcher := trading.NewDispatcher(notifier, producer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("infinite buying bot starting: symbol=%s investment=%s splits=%d target=%s mode=%s mock=%v",
		cfg.Trading.Symbol, cfg.Trading.TotalInvestment, cfg.Trading.NumSplits,
		cfg.Trading.ProfitTarget, cfg.Trading.EmergencySellMode, cfg.Kiwoom.Mock)

	// Capital that cannot carry all splits must stop the process here, not
	// fail silently on the first scheduled buy.
	position, err := service.Initialize(ctx)
	if err != nil {
		notifier.Error(ctx, "startup failed: "+err.Error())
		log.Fatalf("startup failed: %v", err)
	}
	notifier.Startup(ctx, position)
	log.Printf("position ready: %s (%s) cycle %d", position.SymbolName, position.Symbol, position.CycleNumber)

	runner := schedule.New(ctx, seoul)
	jobs := []struct {
		spec string
		name string
		run  func(ctx context.Context) trading.PhaseResult
	}{
		{cfg.Schedule.SellArm, "sell-arm", service.ArmSell},
		{cfg.Schedule.BuyOrEmergency, "buy-or-emergency", service.ExecuteBuyOrEmergency},
		{cfg.Schedule.Reconcile, "reconcile", service.Reconcile},
	}
	for _, j := range jobs {
		run := j.run
		err := runner.Add(j.spec, j.name, func(ctx context.Context) {
			dispatcher.Dispatch(ctx, run(ctx))
		})
		if err != nil {
			log.Fatalf("failed to schedule %s: %v", j.name, err)
		}
	}
	runner.Start()
	defer runner.Stop()

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: api.SetupRoutes(api.NewHandler(db, cfg.Trading.Symbol)),
	}
	go func() {
		log.Printf("status API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("status API stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("status API shutdown failed: %v", err)
	}
}
