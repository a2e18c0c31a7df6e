package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"datatoken/internal/config"
	"datatoken/internal/domain"
	"datatoken/internal/infra/contentstore"
	"datatoken/internal/infra/crypto"
	"datatoken/internal/infra/db"
	httpinfra "datatoken/internal/infra/http"
	"datatoken/internal/infra/ledgermem"
	"datatoken/internal/infra/policyopa"
	"datatoken/internal/infra/ratelimit"
	"datatoken/internal/pkg/worker"
	"datatoken/internal/usecase"
)

// app is the wired object graph behind serve and audit.
type app struct {
	deps    httpinfra.Deps
	pool    *worker.Pool
	closers []func() error
}

func (a *app) Close() error {
	if a.pool != nil {
		a.pool.Release(5 * time.Second)
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	probes := map[string]func(context.Context) error{}

	var store *db.Store
	if cfg.LedgerBackend == config.BackendPostgres || cfg.ContentBackend == config.BackendPostgres {
		s, err := db.NewStore(db.Options{
			DSN:          cfg.PostgresDSN,
			MaxOpenConns: cfg.PostgresMaxOpenConns,
			AutoMigrate:  cfg.PostgresAutoMigrate,
		}, log.Named("db"))
		if err != nil {
			return nil, err
		}
		store = s
		a.closers = append(a.closers, store.Close)
		probes["postgres"] = store.Ping
	}

	var ledger usecase.Ledger
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		ledger = store.Ledger
	default:
		ledger = ledgermem.New()
	}

	var content usecase.ContentStore
	switch cfg.ContentBackend {
	case config.BackendPostgres:
		content = store.Content
	case config.BackendRedis:
		r, err := contentstore.NewRedis(contentstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisKeyPrefix,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		probes["redis"] = r.Ping
		content = r
	default:
		content = contentstore.NewMemory()
	}

	var limiter domain.RateLimiter
	if cfg.RateLimitRequests > 0 {
		if cfg.RedisAddr != "" {
			r, err := ratelimit.NewRedis(ratelimit.RedisOptions{
				Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
			})
			if err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, r.Close)
			limiter = r
		} else {
			limiter = ratelimit.NewMemory(nil, 0)
		}
	}

	var policy usecase.AuthorizationPolicy
	if cfg.PolicyEnabled || cfg.PolicyBundlePath != "" || len(cfg.BlockedIssuers) > 0 {
		var (
			engine *policyopa.Engine
			err    error
		)
		if cfg.PolicyBundlePath != "" {
			engine, err = policyopa.NewEngineFromBundlePath(ctx, cfg.PolicyBundlePath)
		} else {
			engine, err = policyopa.NewDefaultEngine(ctx, cfg.BlockedIssuers)
		}
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load policy: %w", err)
		}
		log.Info("authorization policy loaded", zap.String("bundle_hash", engine.BundleHash()))
		policy = engine
	}

	pool, err := worker.New("audit", cfg.WorkerPoolSize, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pool = pool

	resolver := &usecase.Resolver{Ledger: ledger, Content: content}
	verifier := &usecase.Verifier{Ledger: ledger, Resolver: resolver, Signer: crypto.NewService(), Logger: log.Named("verifier")}
	tracer := &usecase.Tracer{Ledger: ledger, Resolver: resolver, Logger: log.Named("tracer")}

	a.deps = httpinfra.Deps{
		Assets: &usecase.AssetService{
			Ledger: ledger, Content: content, Resolver: resolver, Verifier: verifier,
			Tracer: tracer, Policy: policy, Logger: log.Named("assets"),
		},
		Jobs: &usecase.JobService{
			Ledger: ledger, Resolver: resolver, Verifier: verifier, Policy: policy, Logger: log.Named("jobs"),
		},
		System: &usecase.SystemService{
			Ledger: ledger, Content: content, Verifier: verifier, Logger: log.Named("system"),
		},
		Tracer: tracer,
		Audit: &usecase.IntegrityAudit{
			Ledger: ledger, Resolver: resolver, Verifier: verifier, Pool: pool, Logger: log.Named("audit"),
		},
		Resolver:    resolver,
		Verifier:    verifier,
		Ledger:      ledger,
		Probes:      probes,
		RateLimiter: limiter,
		Logger:      log,
	}
	log.Info("backends ready",
		zap.String("ledger", cfg.LedgerBackend),
		zap.String("content", cfg.ContentBackend),
		zap.Bool("policy", policy != nil),
	)
	return a, nil
}
