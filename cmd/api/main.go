package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/config"
	"gatekeep.org/internal/httpapi"
	"gatekeep.org/internal/obs"
	"gatekeep.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	credentials, err := auth.NewCredentialService(cfg.AuthSecret, cfg.SessionTTL())
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}
	sessions, err := auth.NewSessionManager(store.Sessions(), cfg.SessionTTL())
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}
	tokens, err := auth.NewActionTokenService(store.ActionTokens(), cfg.TokenPolicy())
	if err != nil {
		log.Fatalf("action tokens: %v", err)
	}
	clients := auth.NewClientRegistry(cfg.Clients())
	hasher := &auth.BcryptHasher{Cost: cfg.BcryptCost}

	lifecycle, err := auth.NewLifecycle(store, tokens, sessions, credentials, hasher, logMailer{}, cfg.SignupRoles())
	if err != nil {
		log.Fatalf("lifecycle: %v", err)
	}
	rbac, err := auth.NewRBAC(store)
	if err != nil {
		log.Fatalf("rbac: %v", err)
	}
	gate, err := auth.NewGate(clients, credentials, sessions, store.Accounts())
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	// Seed the claim catalog and sweep stale state before serving.
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := lifecycle.EnsureBuiltins(startupCtx); err != nil {
		log.Fatalf("seed claims: %v", err)
	}
	if n, err := sessions.DeleteExpired(startupCtx); err != nil {
		log.Printf("sweep sessions: %v", err)
	} else if n > 0 {
		log.Printf("swept %d expired sessions", n)
	}
	if n, err := tokens.DeleteExpired(startupCtx); err != nil {
		log.Printf("sweep action tokens: %v", err)
	} else if n > 0 {
		log.Printf("swept %d expired action tokens", n)
	}
	cancel()

	api := httpapi.New(gate, lifecycle, rbac, httpapi.ReadyProbe{DB: store.DB()}, version,
		httpapi.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekeep-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}

// logMailer writes outbound action links to the structured log. Real
// delivery sits behind the auth.Mailer interface; swap in an SMTP or
// provider-backed implementation without touching the lifecycle.
type logMailer struct{}

func (logMailer) SendActionLink(_ context.Context, email string, types auth.ActionType, link, token string) error {
	entry := map[string]any{
		"msg":   "action link issued",
		"email": email,
		"types": types.String(),
	}
	if link != "" {
		entry["link"] = link
	} else {
		entry["token"] = token
	}
	obs.LogRequest(entry)
	return nil
}
