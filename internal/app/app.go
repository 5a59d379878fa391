// Package app is the composition root: it builds every service from a
// Config and owns their lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/riskdrill/internal/adapt"
	"github.com/abhisek/riskdrill/internal/analytics"
	"github.com/abhisek/riskdrill/internal/api"
	"github.com/abhisek/riskdrill/internal/catalog"
	"github.com/abhisek/riskdrill/internal/config"
	"github.com/abhisek/riskdrill/internal/feedback"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/llm"
	"github.com/abhisek/riskdrill/internal/logging"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/selfcheck"
	"github.com/abhisek/riskdrill/internal/session"
	"github.com/abhisek/riskdrill/internal/store"
	"github.com/abhisek/riskdrill/internal/telemetry"
)

// App holds the wired services.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Catalog   *catalog.Catalog
	Profiles  *profile.Adapter
	Generator *itemgen.CatalogGenerator
	Scorer    *scoring.Engine
	Composer  *feedback.Composer
	Sessions  *session.Orchestrator

	// SQL is nil when no SQLite database is in use.
	SQL *store.SQLStore
	// Redis is nil unless the redis session driver is selected.
	Redis *store.RedisSessionStore

	sink *telemetry.AsyncSink
	// llm is nil unless the llm evaluator is selected.
	llm llm.Provider
}

type options struct {
	logOutput io.Writer
	dbPath    string
	profiles  profile.ProfileSource
	sectors   profile.SectorSource
}

// Option customizes construction.
type Option func(*options)

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithDBPath overrides the SQLite path of the configuration.
func WithDBPath(path string) Option {
	return func(o *options) { o.dbPath = path }
}

// WithProfileSource plugs in an external profile service.
func WithProfileSource(src profile.ProfileSource) Option {
	return func(o *options) { o.profiles = src }
}

// WithSectorSource plugs in an external sector context service.
func WithSectorSource(src profile.SectorSource) Option {
	return func(o *options) { o.sectors = src }
}

// New builds the application. On error every resource opened so far is
// released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dbPath != "" {
		cfg.Store.Path = o.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logging.Setup(cfg.Log.Level, cfg.Log.Format, o.logOutput),
		Registry: prometheus.NewRegistry(),
	}
	built := false
	defer func() {
		if !built {
			_ = a.Close(context.Background())
		}
	}()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessions, archive, baselines, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	a.sink = telemetry.NewAsync(a.telemetrySink(), cfg.Telemetry.Buffer)

	a.Catalog = catalog.New()
	loader := catalog.NewLoader(a.Catalog)
	n, err := loader.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load seed catalog: %w", err)
	}
	if cfg.Catalog.Dir != "" {
		extra, err := loader.LoadDir(cfg.Catalog.Dir)
		if err != nil {
			return nil, fmt.Errorf("load catalog dir %s: %w", cfg.Catalog.Dir, err)
		}
		n += extra
	}
	a.Logger.Info("catalog loaded", "templates", n, "modules", len(a.Catalog.Modules()))

	a.Profiles, err = profile.NewAdapter(o.profiles, o.sectors, profile.DefaultConfig())
	if err != nil {
		return nil, err
	}

	genCfg := itemgen.DefaultConfig()
	genCfg.AllowAdjacent = cfg.Catalog.AllowAdjacent
	a.Generator = itemgen.New(a.Catalog, a.Profiles, genCfg)

	evaluator, err := a.evaluator(ctx)
	if err != nil {
		return nil, err
	}
	a.Scorer = scoring.NewEngine(evaluator, cfg.ScoringConfig())
	a.Composer = feedback.NewComposer()

	var profiles session.ProfileResolver
	if o.profiles != nil {
		profiles = a.Profiles
	}
	a.Sessions, err = session.New(session.Deps{
		Generator: a.Generator,
		Scorer:    a.Scorer,
		Composer:  a.Composer,
		Rules:     adapt.DefaultRules,
		Baselines: baselines,
		Sessions:  sessions,
		Archive:   archive,
		Profiles:  profiles,
		Telemetry: a.sink,
	}, cfg.SessionConfig())
	if err != nil {
		return nil, err
	}

	built = true
	return a, nil
}

// openStores picks the session, archive and baseline stores. SQLite holds
// archives and events whenever it is open; Redis only holds live sessions.
func (a *App) openStores(ctx context.Context) (store.SessionStore, store.ArchiveStore, analytics.Baselines, error) {
	cfg := a.Config.Store

	if cfg.Driver == "sqlite" || cfg.Path != "" {
		path := cfg.Path
		if path == "" {
			var err error
			if path, err = store.DefaultDBPath(); err != nil {
				return nil, nil, nil, err
			}
		}
		s, err := store.Open(path)
		if err != nil {
			return nil, nil, nil, err
		}
		a.SQL = s
		a.Logger.Debug("sqlite store opened", "path", path)
	}

	var sessions store.SessionStore
	switch cfg.Driver {
	case "redis":
		r, err := store.NewRedisSessionStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return nil, nil, nil, err
		}
		a.Redis = r
		sessions = r
	case "sqlite":
		sessions = a.SQL
	}

	if a.SQL != nil {
		if sessions == nil {
			sessions = store.NewMemoryStore()
		}
		return sessions, a.SQL, a.SQL, nil
	}
	mem := store.NewMemoryStore()
	if sessions == nil {
		sessions = mem
	}
	return sessions, mem, mem, nil
}

func (a *App) telemetrySink() telemetry.Sink {
	sinks := []telemetry.Sink{telemetry.SlogSink{Logger: a.Logger, Level: slog.LevelDebug}}
	if a.Config.Telemetry.Prometheus {
		sinks = append(sinks, telemetry.PrometheusSink{M: telemetry.MustNewMetrics(a.Registry)})
	}
	if a.Config.Telemetry.Persist && a.SQL != nil {
		sinks = append(sinks, telemetry.StoreSink{Recorder: a.SQL})
	}
	return telemetry.Multi(sinks...)
}

func (a *App) evaluator(ctx context.Context) (scoring.Evaluator, error) {
	if a.Config.Scoring.Evaluator != "llm" {
		return scoring.KeywordEvaluator{}, nil
	}
	provider, err := llm.NewProvider(ctx, a.Config.LLMProvider(), a.sink)
	if err != nil {
		return nil, fmt.Errorf("llm evaluator: %w", err)
	}
	a.llm = provider
	return scoring.NewLLMEvaluator(provider, scoring.DefaultLLMEvaluatorConfig()), nil
}

// Pingers are the connectivity checks of the open stores.
func (a *App) Pingers() map[string]selfcheck.Pinger {
	out := make(map[string]selfcheck.Pinger)
	if a.SQL != nil {
		out["sqlite"] = a.SQL.Ping
	}
	if a.Redis != nil {
		out["redis"] = a.Redis.Ping
	}
	return out
}

// SelfCheckTarget exposes the wired services to the self-check runner.
func (a *App) SelfCheckTarget() selfcheck.Target {
	return selfcheck.Target{
		Config:    a.Config,
		Catalog:   a.Catalog,
		Generator: a.Generator,
		Scorer:    a.Scorer,
		Pingers:   a.Pingers(),
		LLM:       a.llmPinger(),
	}
}

func (a *App) llmPinger() selfcheck.Pinger {
	if a.llm == nil {
		return nil
	}
	return func(ctx context.Context) error { return llm.Ping(ctx, a.llm) }
}

// API builds the HTTP API over the wired services.
func (a *App) API() *api.Server {
	checks := make(map[string]api.Checker)
	for name, ping := range a.Pingers() {
		checks[name] = api.Checker(ping)
	}
	return api.NewServer(api.Deps{
		Sessions:       a.Sessions,
		Generator:      a.Generator,
		Catalog:        a.Catalog,
		Checks:         checks,
		Registry:       a.Registry,
		RequestTimeout: a.Config.Server.WriteTimeout,
	})
}

// Serve runs the HTTP server and the idle session sweeper until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      a.API().Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Sessions.RunSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		a.Logger.Info("HTTP server starting", "addr", srv.Addr, "env", a.Config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Close flushes telemetry and closes the stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.sink != nil {
		if dropped := a.sink.Dropped(); dropped > 0 {
			a.Logger.Warn("telemetry events dropped", "count", dropped)
		}
		if err := a.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush telemetry: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.SQL != nil {
		if err := a.SQL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite: %w", err))
		}
	}
	return errors.Join(errs...)
}
