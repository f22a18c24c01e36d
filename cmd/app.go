package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mark-chris/storefront-auth/internal/api"
	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/config"
	"github.com/mark-chris/storefront-auth/internal/database"
	"github.com/mark-chris/storefront-auth/internal/email"
	"github.com/mark-chris/storefront-auth/internal/metrics"
	"github.com/mark-chris/storefront-auth/internal/middleware"
)

// app holds everything serve starts and later tears down
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	stores  *database.Stores
	limiter auth.RateLimiter
	service *auth.Service
	handler http.Handler
	server  *http.Server

	certFile, keyFile string

	memLimiter *auth.MemoryRateLimiter
	redis      *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	stores, err := database.Open(ctx, cfg.DatabaseOptions(), log.WithField("component", "database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}
	a.stores = stores

	if err := a.openLimiter(ctx); err != nil {
		a.Close()
		return nil, err
	}

	sender, err := email.NewSender(cfg.EmailOptions(), log.WithField("component", "email"))
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  []byte(cfg.Auth.AccessTokenSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshTokenSecret),
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	})
	audit := auth.NewLogrusAuditLogger(log.WithField("component", "audit"))

	a.service = auth.NewService(auth.Deps{
		Users:    stores.Users,
		Sessions: stores.Sessions,
		Tokens:   tokens,
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Notifier: email.NewNotifier(sender, email.NotifierConfig{
			SiteURL:         cfg.Email.SiteURL,
			StoreName:       cfg.Email.StoreName,
			VerificationTTL: cfg.Auth.VerificationTTL,
			ResetTTL:        cfg.Auth.ResetTTL,
		}),
		Audit: audit,
		Log:   log.WithField("component", "auth"),
	}, auth.Options{
		AdminEmail:      cfg.Auth.AdminEmail,
		VerificationTTL: cfg.Auth.VerificationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
		EmailTimeout:    cfg.Email.Timeout,
	})

	a.handler = api.NewRouter(api.RouterConfig{
		Service: a.service,
		Tokens:  tokens,
		Limiter: a.limiter,
		Audit:   audit,
		Log:     log,
		Cookies: api.CookieConfig{
			Secure: !cfg.IsDevelopment(),
			MaxAge: cfg.Auth.RefreshTokenTTL,
		},
		SignupPolicy:         policy(cfg.RateLimit.Signup),
		LoginPolicy:          policy(cfg.RateLimit.Login),
		ForgotPasswordPolicy: policy(cfg.RateLimit.ForgotPassword),
		AllowedOrigins:       parseCORSOrigins(cfg.Server.AllowedOrigins),
		MaxBodyBytes:         parseMaxBodySize(cfg.Server.MaxBodySize),
		Health:               stores,
		Metrics:              metrics.NewRegistry(),
	})

	tlsCfg, certFile, keyFile, err := loadTLSConfig(cfg.Server.TLS.Enabled, cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.MinVersion)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.certFile, a.keyFile = certFile, keyFile

	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port)),
		Handler:           a.handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

func (a *app) openLimiter(ctx context.Context) error {
	rl := a.cfg.RateLimit
	switch rl.Backend {
	case config.LimiterRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     rl.RedisAddr,
			Password: rl.RedisPassword,
			DB:       rl.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", rl.RedisAddr, err)
		}
		a.redis = client
		a.limiter = auth.NewRedisRateLimiter(client, rl.RedisPrefix)
	default:
		a.memLimiter = auth.NewMemoryRateLimiter(rl.CleanupInterval, rl.MaxEntries)
		a.limiter = a.memLimiter
	}
	return nil
}

func policy(p config.LimitPolicy) middleware.RateLimitPolicy {
	return middleware.RateLimitPolicy{MaxAttempts: p.MaxAttempts, Window: p.Window}
}

// Run serves until ctx is cancelled and then drains in-flight requests
func (a *app) Run(ctx context.Context) error {
	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go a.purgeSessions(purgeCtx, a.cfg.Auth.SessionPurgeInterval)

	errCh := make(chan error, 1)
	go func() {
		a.log.WithFields(logrus.Fields{
			"addr":   a.server.Addr,
			"tls":    a.server.TLSConfig != nil,
			"driver": a.stores.Driver,
		}).Info("server listening")

		var err error
		if a.server.TLSConfig != nil {
			err = a.server.ListenAndServeTLS(a.certFile, a.keyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// purgeSessions deletes expired refresh sessions every interval
func (a *app) purgeSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.service.PurgeExpiredSessions(ctx)
			if err != nil {
				a.log.WithError(err).Error("failed to purge expired sessions")
				continue
			}
			metrics.RecordSessionsPurged(n)
			if n > 0 {
				a.log.WithField("count", n).Debug("purged expired sessions")
			}
		}
	}
}

// Close releases the limiter and store connections
func (a *app) Close() {
	if a.memLimiter != nil {
		a.memLimiter.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close redis client")
		}
	}
	if a.stores != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.stores.Close(ctx); err != nil {
			a.log.WithError(err).Warn("failed to close stores")
		}
	}
}
