package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-engine/breaker"
	"github.com/marcelsud/webhook-engine/config"
	"github.com/marcelsud/webhook-engine/dispatch"
	dlqredis "github.com/marcelsud/webhook-engine/dlq/redis"
	"github.com/marcelsud/webhook-engine/engine"
	"github.com/marcelsud/webhook-engine/idempotency"
	idemredis "github.com/marcelsud/webhook-engine/idempotency/redis"
	internalchi "github.com/marcelsud/webhook-engine/internal/http/chi"
	"github.com/marcelsud/webhook-engine/metrics"
	"github.com/marcelsud/webhook-engine/retry"
	"github.com/marcelsud/webhook-engine/webhook/origin"
	"github.com/marcelsud/webhook-engine/webhook/signature"
)

const TIMEOUT = 30 * time.Second

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	secrets := make([]signature.Secret, 0, len(cfg.SigningSecrets))
	for _, encoded := range cfg.SigningSecrets {
		secret, err := signature.ParseSecret(encoded)
		if err != nil {
			fmt.Println(err)
			return
		}
		secrets = append(secrets, secret)
	}
	sigValidator, err := signature.NewValidator(secrets...)
	if err != nil {
		fmt.Println(err)
		return
	}

	originCfg := origin.Config{
		MaxAge:    cfg.MaxPayloadAge,
		ClockSkew: cfg.ClockSkew,
	}
	if cfg.AllowListPath != "" {
		rules, err := origin.LoadRules(cfg.AllowListPath)
		if err != nil {
			fmt.Println(err)
			return
		}
		originCfg.Rules = rules
	}
	originValidator, err := origin.NewValidator(originCfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	store, err := idemredis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer store.Close()

	sink, err := dlqredis.NewSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer sink.Close()

	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
	})

	dispatcher, err := dispatch.NewMailRegistry()
	if err != nil {
		fmt.Println(err)
		return
	}

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialDelay > 0 {
		policy.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	policy.SendToDLQOnExhaustion = cfg.SendToDLQ

	collector := metrics.NewCollector(metrics.Config{})
	tracer := metrics.NewTracer()
	monitor := metrics.NewAlertMonitor(collector, metrics.AlertConfig{
		RateThreshold:      cfg.RateAlertThreshold,
		ErrorRateThreshold: cfg.ErrorRateAlertThreshold,
		Cooldown:           cfg.AlertCooldown,
	})
	go watchAlerts(ctx, monitor)

	exporter, err := metrics.NewOTelExporter(collector, breakers)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer exporter.Shutdown(context.Background())

	service, err := engine.NewService(engine.Config{
		Signatures: sigValidator,
		Origin:     originValidator,
		Idempotent: idempotency.NewCoordinator(store, idempotency.Config{
			OwnerWait: cfg.OwnerWait,
		}),
		Orchestrator: retry.NewOrchestrator(retry.Config{
			Breakers: breakers,
			DLQ:      sink,
		}),
		Dispatcher: dispatcher,
		Collector:  collector,
		Tracer:     tracer,
		Policy:     policy,
		ResultTTL:  cfg.ResultTTL,
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	r := internalchi.Handlers(ctx, service, exporter.ServeHTTP())
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

// watchAlerts evaluates the windowed alerts periodically and prints
// every transition
func watchAlerts(ctx context.Context, monitor *metrics.AlertMonitor) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, event := range monitor.Evaluate() {
				fmt.Printf("alert %s %s: current=%.2f threshold=%.2f\n",
					event.Signal, event.State, event.Current, event.Threshold)
			}
		}
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
