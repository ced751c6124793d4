// Command concierge runs the conversation orchestration core: HTTP ingress,
// the five pipeline services over the message bus, and the collaborator
// clients they depend on.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/commercehttp"
	chttp "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/http"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/knowledgehttp"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/llmhttp"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/membus"
	cnats "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/nats"
	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	cristretto "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/ristretto"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/tickethttp"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/config"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/llmpool"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/logger"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/llm"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/resilience"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/service"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"bus", cfg.Bus.Kind,
		"pool_max", cfg.Pool.Max,
		"turn_deadline", cfg.Turn.Deadline,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := otelx.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("telemetry shutdown", "error", err)
			}
		}()
	}
	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Bus ---
	var queue bus.Bus
	switch cfg.Bus.Kind {
	case "nats":
		q, err := cnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		queue = q
		log.Info("nats connected", "url", cfg.NATS.URL)
	default:
		queue = membus.New(membus.Options{
			Buffer:     cfg.Bus.Buffer,
			RetryFirst: cfg.Bus.RetryFirst,
			RetryTries: cfg.Bus.RetryTries,
		})
		log.Info("in-process bus started")
	}
	defer func() { _ = queue.Drain() }()

	// --- State ---
	store := contextstore.New(contextstore.Options{
		IdleTTL:       cfg.Store.IdleTTL,
		SweepInterval: cfg.Store.SweepInterval,
	}, log)
	defer store.Close()

	cache, err := cristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Collaborators ---
	orders := commercehttp.NewClient(cfg.Collaborators.CommerceURL)
	orders.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	search := knowledgehttp.NewClient(cfg.Collaborators.KnowledgeURL)
	search.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	tickets := tickethttp.NewClient(cfg.Collaborators.TicketURL)
	tickets.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	pool, err := llmpool.New(ctx, func(ctx context.Context) (llm.Client, error) {
		return llmhttp.NewClient(cfg.Collaborators.LLMURL), nil
	}, llmpool.Config{
		Min:            cfg.Pool.Min,
		Max:            cfg.Pool.Max,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("llm pool: %w", err)
	}
	defer pool.Close()

	// --- Pipeline ---
	dispatcher := service.NewDispatcher(queue, store, log)
	augmenter := service.NewAugmenter(queue, orders, search, cache,
		cfg.Collaborators.CallTimeout, cfg.Cache.FragmentTTL, log)
	generator := service.NewGenerator(queue, store, pool, cfg.Thresholds, metrics, log)
	validator := service.NewValidator(queue, store, cfg.Turn.RetryBudget, cfg.Thresholds.ConfidenceFloor, metrics, log)
	escalator := service.NewEscalator(queue, store, tickets, cfg.Collaborators.CallTimeout, metrics, log)

	orch := service.NewOrchestrator(queue, store, escalator, cache,
		cfg.Turn.Workers, cfg.Turn.Deadline, metrics, log)
	if err := orch.Start(ctx, dispatcher, augmenter, generator, validator); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	defer orch.Stop()

	// --- Ingress ---
	tokenizer, err := token.New(cfg.Token.Key)
	if err != nil {
		return fmt.Errorf("tokenizer: %w", err)
	}
	server := chttp.NewServer(queue, tokenizer, log)

	log.Info("ingress listening", "port", cfg.Server.Port)
	if err := server.ListenAndServe(ctx, ":"+cfg.Server.Port, cfg.Logging.Service); err != nil {
		return fmt.Errorf("ingress: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
