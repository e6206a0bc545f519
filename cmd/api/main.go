package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/formrelay/breaker"
	"github.com/marcelsud/formrelay/config"
	"github.com/marcelsud/formrelay/internal/http/chi"
	"github.com/marcelsud/formrelay/metrics"
	"github.com/marcelsud/formrelay/ratelimit"
	"github.com/marcelsud/formrelay/routes"
	"github.com/marcelsud/formrelay/webhook"
	"github.com/marcelsud/formrelay/webhook/redis"
	"github.com/marcelsud/formrelay/webhook/signature"
)

const TIMEOUT = 30 * time.Second

/*
 * As importações devem ser feitas apenas em uma direção: para baixo.
 * O aplicativo (api) importa camadas de negócios, que importam a camada
 * de armazenamento.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	policy, err := cfg.Policy()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	// Redis é opcional: sem ele os payloads ficam em memória e a
	// auditoria fica desligada.
	var (
		source webhook.PayloadSource
		writer chi.PayloadWriter
		audit  webhook.AuditStore
	)
	store, err := redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Printf("redis unavailable, payloads held in memory: %v\n", err)
		memory := webhook.NewMemoryPayloadStore()
		source = memory
		writer = memory
	} else {
		defer store.Close(ctx)
		source = store
		writer = store
		audit = webhook.NewResilientAuditStore(
			store,
			breaker.NewRegistry(breaker.DefaultFailureThreshold, breaker.DefaultRecoveryTimeout),
		)
	}

	destinations := routes.NewLoader()
	if err := destinations.Load(cfg.DestinationsFile); err != nil {
		fmt.Println(err)
		return
	}

	limiter, err := ratelimit.NewLimiter(cfg.OutboundRPS)
	if err != nil {
		fmt.Println(err)
		return
	}

	recorder, err := metrics.NewOTelRecorder(nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer recorder.Shutdown(ctx)

	replayCache := signature.NewMemoryReplayCache(
		time.Duration(cfg.ReplayWindowMins)*time.Minute,
		signature.DefaultMaxEntries,
	)
	verifier := signature.NewVerifier(cfg.WebhookSecret, cfg.SignatureHeader, cfg.MaxPayloadBytes, replayCache)

	executor := webhook.NewHTTPExecutor(limiter, source)
	manager := webhook.NewManager(policy, executor, recorder, audit)
	recorder.SetQueueDepther(manager)

	// Periodic driver: runs a retry pass until shutdown. The pass is
	// single-flight, so overlapping with the admin trigger is harmless.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.ProcessInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				manager.ProcessDue(ctx)
			}
		}
	}()

	r := chi.Handlers(ctx, chi.Deps{
		Verifier:                  verifier,
		Manager:                   manager,
		Executor:                  executor,
		Payloads:                  writer,
		Destinations:              destinations,
		Limiter:                   limiter,
		Recorder:                  recorder,
		Metrics:                   recorder.Handler(),
		TimestampToleranceMinutes: cfg.TimestampTolMins,
	})
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
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
