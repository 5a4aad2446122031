package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fleetpricer/internal/cache"
	"fleetpricer/internal/config"
	"fleetpricer/internal/db"
	"fleetpricer/internal/forecast"
	"fleetpricer/internal/pricing"
	"fleetpricer/internal/repository"
	"fleetpricer/internal/training"
	"fleetpricer/pkg/logger"
	"fleetpricer/pkg/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	cmdTrain       = "train"
	cmdPrice       = "price"
	cmdRun         = "run"
	cmdApprove     = "approve"
	cmdSkip        = "skip"
	cmdBulkApprove = "bulk-approve"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	exitFunc         = os.Exit
)

func main() {
	loadEnvFunc()
	if err := run(os.Args[1:]); err != nil {
		log.Printf("pricer: %v", err)
		exitFunc(1)
	}
}

func usage() error {
	return fmt.Errorf("usage: pricer [train|price|run|approve|skip|bulk-approve] [flags]")
}

func run(args []string) error {
	if len(args) < 1 {
		return usage()
	}
	command := args[0]
	switch command {
	case cmdTrain, cmdPrice, cmdRun, cmdApprove, cmdSkip, cmdBulkApprove:
	default:
		return usage()
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	dateFlag := fs.String("date", "", "run date as YYYY-MM-DD (default: today)")
	idFlag := fs.Int64("id", 0, "recommendation id (approve/skip)")
	actorFlag := fs.String("by", "", "user recorded on approval actions")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	runDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", *dateFlag, err)
		}
		runDate = parsed
	}

	cfg := loadConfigFunc()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := initPostgresFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := initRedisFunc(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	app := newApp(cfg, pool, redisClient, tracer)

	switch command {
	case cmdTrain:
		return app.train(ctx, runDate)
	case cmdPrice:
		return app.price(ctx, runDate)
	case cmdRun:
		if err := app.train(ctx, runDate); err != nil {
			return err
		}
		return app.price(ctx, runDate)
	case cmdApprove:
		if *idFlag <= 0 {
			return fmt.Errorf("approve requires -id")
		}
		return app.recommendations.Approve(ctx, cfg.TenantID, *idFlag, *actorFlag)
	case cmdSkip:
		if *idFlag <= 0 {
			return fmt.Errorf("skip requires -id")
		}
		return app.recommendations.Skip(ctx, cfg.TenantID, *idFlag, *actorFlag)
	case cmdBulkApprove:
		n, err := app.recommendations.BulkApprove(ctx, cfg.TenantID, runDate, *actorFlag)
		if err != nil {
			return err
		}
		log.Printf("approved %d recommendations", n)
		return nil
	default:
		return usage()
	}
}

type app struct {
	cfg             *config.Config
	trainer         *training.Service
	engine          *pricing.Engine
	configs         *repository.ConfigRepository
	recommendations *repository.RecommendationRepository
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, tracer trace.Tracer) *app {
	features := repository.NewFeatureRepository(pool, tracer)
	forecasts := repository.NewForecastRepository(pool, tracer)
	metrics := repository.NewMetricsRepository(pool, tracer)
	configs := repository.NewConfigRepository(pool, tracer)
	signals := repository.NewSignalRepository(pool, tracer)
	recommendations := repository.NewRecommendationRepository(pool, tracer)

	trainer := training.NewService(
		tracer,
		logger.New("training"),
		features, forecasts, metrics,
		training.Config{
			Horizon:        cfg.ForecastHorizonDays,
			SeasonalPeriod: cfg.SeasonalPeriod,
			Boost:          forecast.BoostOptions{Rounds: cfg.BoostRounds},
			Sequence: forecast.SequenceOptions{
				Window: cfg.SequenceWindowDays,
				Epochs: cfg.SequenceEpochs,
			},
			ScreenOutliers: cfg.OutlierScreening,
		},
	)

	log := logger.New("pricing")
	configCache := pricing.NewConfigCache(configs, redisClient, log, cfg.ConfigCacheTTL)
	engine := pricing.NewEngine(
		tracer, log, configCache,
		forecasts, features, features, signals, signals, signals,
		recommendations,
		pricing.Config{
			Days:          cfg.PricingDays,
			Workers:       cfg.PricingWorkers,
			PremiumScale:  cfg.PremiumScale,
			DiscountScale: cfg.DiscountScale,
			HighThreshold: cfg.HighThreshold,
			LowThreshold:  cfg.LowThreshold,
			TrailingDays:  cfg.TrainWindowDays,
			WeekendDays:   cfg.WeekendDays,
		},
	)

	return &app{
		cfg:             cfg,
		trainer:         trainer,
		engine:          engine,
		configs:         configs,
		recommendations: recommendations,
	}
}

func (a *app) train(ctx context.Context, runDate time.Time) error {
	summary, err := a.trainer.Execute(ctx, a.cfg.TenantID, runDate)
	if err != nil {
		return fmt.Errorf("training run: %w", err)
	}
	log.Printf("training complete: best=%s forecasts=%d excluded=%d",
		summary.BestModel, summary.ForecastsSaved, len(summary.Excluded))
	return nil
}

func (a *app) price(ctx context.Context, runDate time.Time) error {
	scope, err := a.configs.EntityScope(ctx, a.cfg.TenantID)
	if err != nil {
		return fmt.Errorf("resolve entity scope: %w", err)
	}
	summary, err := a.engine.Run(ctx, a.cfg.TenantID, runDate, scope)
	if err != nil {
		return fmt.Errorf("pricing run: %w", err)
	}
	log.Printf("pricing complete: entities=%d recommendations=%d guardrail_hits=%d failed=%d",
		summary.Entities, summary.Recommendations, summary.GuardrailHits, len(summary.Failed))
	return nil
}
