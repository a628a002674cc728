package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/mjansen/ledgerlink/internal/credential"
	"github.com/mjansen/ledgerlink/internal/credstore"
	"github.com/mjansen/ledgerlink/internal/provider"
	"github.com/mjansen/ledgerlink/internal/ratelimit"
	"github.com/mjansen/ledgerlink/internal/server"
)

// App orchestrates the lifecycle of the broker server and related services.
type App struct {
	cfg    *Config
	store  credstore.Store
	server *server.Server
}

// New creates a new App instance: storage, rate limiter, the token
// provider for the configured mode, and the HTTP boundary. The constructed
// provider is installed as the process-wide active provider.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Storage.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	limiter := cfg.Quota.NewLimiter()

	tokenProvider, resolver, err := newProvider(cfg, store, limiter)
	if err != nil {
		return nil, fmt.Errorf("failed to create token provider: %w", err)
	}
	provider.Initialize(tokenProvider)

	srv, err := server.New(server.Options{
		Provider:        tokenProvider,
		Resolver:        resolver,
		Limiter:         limiter,
		Store:           store,
		UpstreamBaseURL: cfg.Upstream.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &App{
		cfg:    cfg,
		store:  store,
		server: srv,
	}, nil
}

// newProvider builds the token provider and subject resolver for the
// configured mode. The limiter is the process-wide one: refresh handshakes
// and proxied resource calls spend the same quota.
func newProvider(cfg *Config, store credstore.Store, limiter *ratelimit.Limiter) (provider.TokenProvider, server.SubjectResolver, error) {
	switch cfg.Mode {
	case ModeLocal:
		set, err := localCredentials()
		if err != nil {
			return nil, nil, err
		}
		p, err := provider.New(provider.Options{
			Mode:   provider.ModeLocal,
			Static: set,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, server.SingleSubject(cfg.LocalSubject), nil

	case ModeRemote:
		verifier, err := provider.NewSessionVerifier(cfg.Session.SigningSecret)
		if err != nil {
			return nil, nil, err
		}
		refresher, err := cfg.newRefresher(verifier, limiter)
		if err != nil {
			return nil, nil, err
		}
		p, err := provider.New(provider.Options{
			Mode:      provider.ModeRemote,
			Store:     store,
			Refresher: refresher,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, refresher, nil

	default:
		return nil, nil, fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
}

// localCredentials reads the fixed credential set for local mode from the
// environment.
func localCredentials() (credential.Set, error) {
	raw, ok := os.LookupEnv(provider.AccessTokenEnv)
	if !ok {
		return credential.Set{}, fmt.Errorf("local mode requires %s to be set", provider.AccessTokenEnv)
	}
	set, err := credential.Decode([]byte(raw))
	if err != nil {
		return credential.Set{}, fmt.Errorf("%s: %w", provider.AccessTokenEnv, err)
	}
	return set, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function
// collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting broker server", "address", address, "mode", a.cfg.Mode)
	serverErrCh, err := a.server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	if closer, ok := a.store.(io.Closer); ok {
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
			return closer.Close()
		})
	}

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// NewRefresher builds a standalone refresher for one-shot commands like
// provisioning. It gets its own limiter; no server shares the process.
func (c *Config) NewRefresher() (*provider.Refresher, error) {
	return c.newRefresher(nil, c.Quota.NewLimiter())
}

// newRefresher creates the OAuth refresher for the configured upstream
// endpoint.
func (c *Config) newRefresher(verifier *provider.SessionVerifier, limiter *ratelimit.Limiter) (*provider.Refresher, error) {
	endpoint := oauth2.Endpoint{
		AuthURL:   c.Upstream.AuthURL,
		TokenURL:  c.Upstream.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return provider.NewRefresher(
		c.Upstream.ClientID,
		c.Upstream.ClientSecret,
		endpoint,
		limiter,
		provider.WithSessionVerifier(verifier),
	)
}
