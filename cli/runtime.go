package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/bridge"
	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/healthcheck"
	"github.com/becomeliminal/nim-memory/locallog"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/cached"
	"github.com/becomeliminal/nim-memory/memory/embedder/gemini"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/embedder/ollama"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/firestore"
)

// runtime is the assembled memory layer for one command.
type runtime struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *memory.Orchestrator
	history      locallog.Log
	closers      []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// setup builds the store, embedder, history log and orchestrator from cfg.
func setup(ctx context.Context, cfg *config.Config) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logging.Default()}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	store, err := rt.newStore(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := rt.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	history, err := rt.newHistory()
	if err != nil {
		return nil, err
	}
	rt.history = history

	var checkers []memory.HealthChecker
	for _, c := range []any{store, embedder} {
		if hc, ok := c.(memory.HealthChecker); ok {
			checkers = append(checkers, hc)
		}
	}

	if target := cfg.Store.HealthTarget; target != "" {
		g, err := healthcheck.DialGRPC(target, config.HealthService)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, g.Close)
		checkers = append(checkers, g)
	}

	o, err := memory.New(embedder, store, history,
		memory.WithConfig(cfg.MemoryConfig()),
		memory.WithLogger(rt.logger),
		memory.WithHealthChecker(healthcheck.All(checkers...)),
	)
	if err != nil {
		return nil, err
	}
	rt.orchestrator = o
	rt.closers = append(rt.closers, o.Close)
	return rt, nil
}

func (r *runtime) newStore(ctx context.Context) (memory.VectorStore, error) {
	sc := r.cfg.Store
	switch sc.Backend {
	case config.BackendChromem:
		return r.newChromem()

	case config.BackendFirestore:
		s, err := firestore.New(ctx, sc.Project, sc.Database,
			[]firestore.Option{firestore.WithCollection(sc.Collection)})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore store")
		}
		r.closers = append(r.closers, s.Close)
		return s, nil

	case config.BackendBridge:
		return bridge.NewClient(sc.BridgeURL, nil), nil
	}
	return nil, goerr.New("unknown store backend", goerr.V("backend", sc.Backend))
}

func (r *runtime) newChromem() (*chromem.Store, error) {
	sc := r.cfg.Store
	opts := []chromem.Option{
		chromem.WithCollection(sc.Collection),
		chromem.WithLogger(r.logger),
	}
	if sc.Path != "" {
		opts = append(opts, chromem.WithPersistence(sc.Path, sc.Compress))
	}
	if r.cfg.Embedder.Dimensions > 0 {
		opts = append(opts, chromem.WithDimensions(r.cfg.Embedder.Dimensions))
	}
	s, err := chromem.New(opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chromem store")
	}
	r.closers = append(r.closers, s.Close)
	return s, nil
}

func (r *runtime) newEmbedder(ctx context.Context) (memory.Embedder, error) {
	ec := r.cfg.Embedder

	var (
		inner memory.Embedder
		err   error
	)
	switch ec.Provider {
	case config.ProviderMock:
		var opts []mock.Option
		if ec.Dimensions > 0 {
			opts = append(opts, mock.WithDimensions(ec.Dimensions))
		}
		inner = mock.New(opts...)

	case config.ProviderOllama:
		var opts []ollama.Option
		if ec.Model != "" {
			opts = append(opts, ollama.WithModel(ec.Model))
		}
		if ec.Dimensions > 0 {
			opts = append(opts, ollama.WithDimensions(ec.Dimensions))
		}
		inner = ollama.New(ec.OllamaURL, opts...)

	case config.ProviderGemini:
		inner, err = gemini.New(ctx, gemini.Config{
			Project:    ec.GeminiProject,
			Location:   ec.GeminiLocation,
			APIKey:     ec.GeminiAPIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
		})

	case config.ProviderONNX:
		inner, err = r.newONNX()

	default:
		err = goerr.New("unknown embedding provider", goerr.V("provider", ec.Provider))
	}
	if err != nil {
		return nil, err
	}

	// The mock embedder is already cheap.
	if ec.CacheBytes == 0 || ec.Provider == config.ProviderMock {
		return inner, nil
	}
	c, err := cached.New(inner, cached.Config{MaxBytes: ec.CacheBytes, TTL: ec.CacheTTL})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() error { c.Close(); return nil })
	return c, nil
}

func (r *runtime) newHistory() (locallog.Log, error) {
	if r.cfg.LocalLog.Path == "" {
		return locallog.NewMemory(0), nil
	}
	l, err := locallog.OpenSQLite(r.cfg.LocalLog.Path)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, l.Close)
	return l, nil
}
