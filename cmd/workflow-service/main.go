// Command workflow-service boots the boundary layer (C7) over a Postgres-
// backed engine (C5), registry (C4), and scheduler (C6), wiring in the
// Anthropic/Bedrock AI providers, the market-data provider, and the Redis
// context cache (spec.md §6, §4.2's "CachedStore").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/internal/config"
	"github.com/ledgerflow/workflowengine/pkg/ai"
	"github.com/ledgerflow/workflowengine/pkg/audit"
	"github.com/ledgerflow/workflowengine/pkg/boundary"
	"github.com/ledgerflow/workflowengine/pkg/contextstore"
	"github.com/ledgerflow/workflowengine/pkg/engine"
	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/marketdata"
	"github.com/ledgerflow/workflowengine/pkg/metrics"
	"github.com/ledgerflow/workflowengine/pkg/notify"
	"github.com/ledgerflow/workflowengine/pkg/predicate"
	"github.com/ledgerflow/workflowengine/pkg/ratelimit"
	"github.com/ledgerflow/workflowengine/pkg/registry"
	"github.com/ledgerflow/workflowengine/pkg/retention"
	"github.com/ledgerflow/workflowengine/pkg/scheduler"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/storage/postgres"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	flag.Parse()

	log := logrus.New()

	cfgLoader, err := config.Load(*configPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	defer cfgLoader.Close()
	cfg := cfgLoader.Current()

	if lvl, lerr := logrus.ParseLevel(cfg.LogLevel); lerr == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.WithError(err).Fatal("failed to open postgres pool")
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, context snapshots will bypass the cache")
			redisClient = nil
		}
	}

	durableCtxStore := postgres.NewContextStore(db)
	var ctxStore contextstore.Store = durableCtxStore
	if redisClient != nil {
		ctxStore = contextstore.NewCachedStore(durableCtxStore, redisClient, log.WithField("component", "contextstore"))
	}

	execStore := postgres.NewExecutionStore(db)
	regStore := postgres.NewRegistryStore(db)

	promReg := prometheus.NewRegistry()
	metricsReg := metrics.New(promReg)

	lib := steplibrary.New()
	reg := registry.New(regStore, lib)

	predicates := predicate.NewDispatcher()

	aiGuard := ratelimit.New(ratelimit.Config{Name: "ai", RequestsPerSecond: cfg.AI.RequestsPerSecond})
	aiProvider := buildAIProvider(ctx, cfg, aiGuard, log)

	marketGuard := ratelimit.New(ratelimit.Config{Name: "marketdata", RequestsPerSecond: cfg.MarketData.RequestsPerSecond})
	marketProvider := marketdata.NewHTTPProvider(cfg.MarketData.BaseURL, nil, marketGuard)

	postconditions := executor.NewPostConditionRegistry(log)
	execRegistry := executor.NewDefaultRegistry(executor.Providers{
		AI:             aiProvider,
		MarketData:     marketProvider,
		Predicates:     predicates,
		PostConditions: postconditions,
	})
	execRegistry.Register(types.StepKindAIGenerated,
		executor.NewAIGeneratedExecutor(aiProvider).WithPromptRenderer(ai.NewTemplateRenderer()))

	eng := engine.NewEngine(execStore, ctxStore, predicates, log).WithMetrics(metricsReg)
	sched := scheduler.New(eng, execRegistry, lib, cfg.Scheduler.GlobalParallelism, log).WithMetrics(metricsReg)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Slack.Token != "" {
		notifier = notify.NewSlackNotifier(cfg.Slack.Token, cfg.Slack.Channel)
	}
	auditSink := audit.NewBufferedSink(log, 1024)
	defer auditSink.Close()

	srv := boundary.New(reg, eng, sched, log, boundary.Config{
		Notifier: notifier,
		Audit:    auditSink,
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promReg))
		_ = http.ListenAndServe(":9090", mux)
	}()

	sweeper := retention.New(execStore, ctxStore, cfg.Retention.Horizon, cfg.Retention.SweepInterval, log.WithField("component", "retention"))
	go sweeper.Run(ctx)

	if err := srv.Serve(ctx, cfg.HTTP.Addr); err != nil {
		log.WithError(err).Fatal("boundary layer exited with an error")
	}
}

// buildAIProvider wires the Anthropic client as primary and, when a Bedrock
// model id is configured, a Bedrock client as FallbackProvider's secondary —
// the same primary/secondary shape pkg/ai.FallbackProvider documents.
func buildAIProvider(ctx context.Context, cfg config.Config, guard *ratelimit.Guard, log *logrus.Logger) executor.AIProvider {
	primary := ai.NewAnthropicProvider(cfg.AI.AnthropicAPIKey, anthropic.Model(cfg.AI.AnthropicModel), guard)

	if cfg.AI.BedrockModelID == "" {
		return ai.NewDedupingProvider(primary)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS config, Bedrock fallback disabled")
		return ai.NewDedupingProvider(primary)
	}
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)
	invoke := func(ctx context.Context, modelID, prompt string) (string, error) {
		body, err := json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": 2048,
		})
		if err != nil {
			return "", err
		}
		out, err := bedrockClient.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     &modelID,
			Body:        body,
			ContentType: awsStringPtr("application/json"),
			Accept:      awsStringPtr("application/json"),
		})
		if err != nil {
			return "", err
		}
		return string(out.Body), nil
	}
	secondary := ai.NewBedrockProvider(cfg.AI.BedrockModelID, invoke, guard)

	fallback := ai.NewFallbackProvider(primary, secondary)
	return ai.NewDedupingProvider(fallback)
}

func awsStringPtr(s string) *string { return &s }
