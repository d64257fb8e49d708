// Command server runs the notefold API.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kuitang/notefold/internal/api"
	"github.com/kuitang/notefold/internal/auth"
	"github.com/kuitang/notefold/internal/chat"
	"github.com/kuitang/notefold/internal/config"
	"github.com/kuitang/notefold/internal/crypto"
	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/email"
	"github.com/kuitang/notefold/internal/export"
	"github.com/kuitang/notefold/internal/mcp"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/obs"
	"github.com/kuitang/notefold/internal/ratelimit"
	"github.com/kuitang/notefold/internal/s3client"
	"github.com/kuitang/notefold/internal/search"
	"github.com/kuitang/notefold/internal/share"
)

const (
	sharePurgeInterval = 10 * time.Minute
	shutdownTimeout    = 15 * time.Second
	inMemoryBucket     = "notefold-exports"
)

func main() {
	cfg := config.MustLoadConfig(config.ParseFlags())
	obs.Init()
	cfg.PrintStartupSummary()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Pkg("main").Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := obs.Pkg("main")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Chat completions can take a while.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app is the wired server. Close releases what newApp opened, in reverse.
type app struct {
	handler http.Handler
	emails  email.EmailService
	closers []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newApp opens storage and builds every service and route. Background loops
// stop when ctx is done.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	db.DataDirectory = cfg.DatabasePath
	shared, err := db.OpenSharedDB()
	if err != nil {
		return nil, fmt.Errorf("open shared database: %w", err)
	}
	a.onClose(func() { _ = db.CloseAll() })

	masterKey, err := hex.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("decode MASTER_KEY: %w", err)
	}
	signingSeed, err := hex.DecodeString(cfg.JWTSigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode JWT_SIGNING_KEY: %w", err)
	}

	if cfg.NoEmail {
		a.emails = email.NewMockEmailService()
	} else {
		a.emails = email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}

	users := auth.NewUserService(shared, crypto.NewKeyManager(masterKey, shared), a.emails, cfg.BaseURL)
	issuer, err := auth.NewTokenIssuer(signingSeed, cfg.BaseURL, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	var (
		blacklist   auth.Blacklist
		apiLimiter  ratelimit.Limiter
		authLimiter ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.onClose(func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		blacklist = auth.NewRedisBlacklist(client, "notefold:revoked:")
		apiLimiter = ratelimit.NewRedisLimiter(client, "notefold:rl:api:", cfg.RateLimitConfig)
		authLimiter = ratelimit.NewRedisLimiter(client, "notefold:rl:auth:", cfg.AuthRateLimitConfig)
	} else {
		mem := auth.NewMemoryBlacklist(time.Minute)
		a.onClose(mem.Stop)
		blacklist = mem

		apiRL := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
		a.onClose(apiRL.Stop)
		apiLimiter = apiRL

		authRL := ratelimit.NewRateLimiter(cfg.AuthRateLimitConfig)
		a.onClose(authRL.Stop)
		authLimiter = authRL
	}
	middleware := auth.NewMiddleware(issuer, blacklist, users)

	shares := share.NewService(shared, cfg.BaseURL)
	go shares.RunPurgeLoop(ctx, sharePurgeInterval)

	chatSvc, err := newChatService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := newExportStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.onClose(closeStore)
	exports := export.NewService(store)
	users.OnDelete(exports.DeleteAll)

	quota := notes.Quota{LimitBytes: cfg.StorageQuotaBytes, EnforceOnUpdate: cfg.QuotaEnforceOnUpdate}

	perUser := ratelimit.Middleware(apiLimiter, func(r *http.Request) string {
		return auth.GetUserID(r.Context())
	})
	protect := func(next http.Handler) http.Handler {
		return middleware.RequireAuth(perUser(next))
	}

	mux := http.NewServeMux()
	auth.NewHandler(users, issuer, blacklist, middleware, cfg.RequireSecureCookies()).
		RegisterRoutes(mux, ratelimit.Middleware(authLimiter, ratelimit.ClientIP))
	api.NewHandler(api.Options{
		Quota:   quota,
		Shares:  shares,
		Owners:  users,
		Chat:    chatSvc,
		Exports: exports,
		BaseURL: cfg.BaseURL,
	}).RegisterRoutes(mux, protect)

	mcpServer := mcp.NewServer()
	mcpAuthed := protect(mcp.WithUserServices(func(userDB *db.UserDB) (*notes.Service, *search.Service) {
		return notes.NewService(userDB, quota, shares), search.NewService(userDB)
	}, mcpServer))
	mountMCPRoute(mux, "/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Preflight carries no credentials.
		if r.Method == http.MethodOptions {
			mcpServer.ServeHTTP(w, r)
			return
		}
		mcpAuthed.ServeHTTP(w, r)
	}))

	a.handler = obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", mux))
	return a, nil
}

// mountMCPRoute registers every method the Streamable HTTP transport uses.
// The handler answers the ones it does not serve.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}

// newChatService enables each provider whose API key is configured.
func newChatService(ctx context.Context, cfg *config.Config) (*chat.Service, error) {
	var providers []chat.Provider
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, chat.NewOpenAIProvider(chat.OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			DefaultModel: cfg.OpenAIDefaultModel,
		}))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := chat.NewGeminiProvider(ctx, chat.GeminiConfig{
			APIKey:       cfg.GeminiAPIKey,
			DefaultModel: cfg.GeminiDefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		providers = append(providers, gemini)
	}
	return chat.NewService(providers...), nil
}

// newExportStore connects to S3, or starts an in-process fake with --no-s3.
func newExportStore(ctx context.Context, cfg *config.Config) (*s3client.Client, func(), error) {
	if cfg.NoS3 {
		client, stop, err := s3client.NewInMemory(ctx, inMemoryBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("in-memory s3: %w", err)
		}
		return client, stop, nil
	}
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
		PublicURL:       cfg.AWSPublicURL,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("s3 client: %w", err)
	}
	return client, func() {}, nil
}
