// Command matchmaker-auth runs the OAuth 2.1 authorization server that
// bridges PKCE clients to an email/password identity provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	oauth "github.com/matchmakerhq/matchmaker-auth"
	"github.com/matchmakerhq/matchmaker-auth/instrumentation"
	"github.com/matchmakerhq/matchmaker-auth/providers"
	"github.com/matchmakerhq/matchmaker-auth/providers/local"
	"github.com/matchmakerhq/matchmaker-auth/providers/supabase"
	"github.com/matchmakerhq/matchmaker-auth/security"
	"github.com/matchmakerhq/matchmaker-auth/storage/memory"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	generateKey := flag.Bool("generate-key", false, "print a fresh session encryption key and exit")
	flag.Parse()

	if *generateKey {
		key, err := security.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println(security.KeyToBase64(key))
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := cfg.newLogger()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	store := memory.New()
	defer store.Stop()

	server, err := oauth.NewServer(provider, store, store, &oauth.Config{
		Issuer:               cfg.Issuer,
		TrustProxy:           cfg.TrustProxy,
		TrustedProxyCount:    cfg.TrustedProxyCount,
		AuthorizationCodeTTL: cfg.AuthorizationCodeTTL,
		AccessTokenTTL:       cfg.AccessTokenTTL,
		RequiredScope:        cfg.RequiredScope,
		AllowUnscopedUsers:   cfg.AllowUnscopedUsers,
		SupportedScopes:      cfg.SupportedScopes,
	}, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	server.SetAuditor(security.NewAuditor(logger, cfg.Security.AuditLogging))

	if cfg.Security.EncryptionKey != "" {
		key, err := security.KeyFromBase64(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("decode encryption key: %w", err)
		}
		enc, err := security.NewEncryptor(key)
		if err != nil {
			return fmt.Errorf("create encryptor: %w", err)
		}
		server.SetEncryptor(enc)
		logger.Info("Session encryption at rest enabled")
	}

	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		LogClientIPs:   cfg.Telemetry.LogClientIPs,
	})
	if err != nil {
		return fmt.Errorf("create instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()
	server.SetInstrumentation(inst)

	handler := oauth.NewHandler(server, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      security.RequestIDMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			"addr", cfg.ListenAddr,
			"provider", provider.Name(),
			"issuer", cfg.Issuer,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func buildProvider(cfg *fileConfig) (providers.Provider, error) {
	switch cfg.Provider.Name {
	case "supabase":
		return supabase.NewProvider(&supabase.Config{
			ProjectURL: cfg.Provider.Supabase.ProjectURL,
			APIKey:     cfg.Provider.Supabase.APIKey,
		})
	case "local", "":
		return local.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}
