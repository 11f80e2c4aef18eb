package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicebridge/internal/agent"
	"voicebridge/internal/bridge"
	"voicebridge/internal/callmap"
	"voicebridge/internal/config"
	"voicebridge/internal/daily"
	"voicebridge/internal/httpapi"
	"voicebridge/internal/plivo"
	"voicebridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	upstreamClient := &http.Client{Timeout: cfg.App.UpstreamTimeout}

	var signer *daily.TokenSigner
	if cfg.Daily.SelfSignTokens {
		signer, err = daily.NewTokenSigner(cfg.Daily.APIKey, cfg.Daily.TokenTTL)
		if err != nil {
			log.Error("token signer init failed", "err", err)
			os.Exit(1)
		}
	}
	rooms := daily.NewClient(cfg.Daily.APIURL, cfg.Daily.APIKey, upstreamClient, signer)
	carrier := plivo.NewClient(cfg.Plivo.APIURL, cfg.Plivo.AuthID, cfg.Plivo.AuthToken, upstreamClient)
	agents := agent.NewLauncher(cfg.Agent.Command, cfg.Agent.LogDir, log)

	// One identity map per process, injected everywhere it is needed.
	store := callmap.NewStore()

	svc := bridge.NewService(rooms, carrier, agents, store, bridge.Options{
		FromNumber:           cfg.Plivo.PhoneNumber,
		AnswerURL:            cfg.CallbackURL("/call-answered"),
		HangupURL:            cfg.CallbackURL("/call-hangup"),
		FallbackURL:          cfg.CallbackURL("/call-fallback"),
		ReadyTimeoutInbound:  cfg.Agent.ReadyTimeoutInbound,
		ReadyTimeoutOutbound: cfg.Agent.ReadyTimeoutOutbound,
	})

	limiter := httpapi.NewIPRateLimiter(httpapi.DefaultRateLimitConfig())
	defer limiter.Stop()

	h := httpapi.Handlers{
		Bridge:    svc,
		Responder: bridge.NewResponder(store),
		Store:     store,
		Agents:    agents,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, limiter)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("bridge listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Workers outlive their calls; reap them all before exiting.
	agents.TerminateAll(shutdownCtx)
}
