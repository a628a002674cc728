package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/mjansen/ledgerlink/internal/credstore"
	"github.com/mjansen/ledgerlink/internal/provider"
	"github.com/mjansen/ledgerlink/internal/ratelimit"
	"github.com/mjansen/ledgerlink/internal/upstream"
)

// SubjectResolver extracts the subject id a request is made on behalf of.
// Remote mode uses the session-validating resolver on the Refresher; local
// mode uses SingleSubject.
type SubjectResolver interface {
	SubjectFromRequest(r *http.Request) (string, error)
}

// SingleSubject resolves every request to one fixed subject id, for local
// single-tenant mode where requests carry no credentials.
type SingleSubject string

// Compile-time check that SingleSubject implements SubjectResolver.
var _ SubjectResolver = SingleSubject("")

// SubjectFromRequest returns the fixed subject id.
func (s SingleSubject) SubjectFromRequest(*http.Request) (string, error) {
	return string(s), nil
}

// Options carries the collaborators the server fronts.
type Options struct {
	Provider provider.TokenProvider
	Resolver SubjectResolver
	Limiter  *ratelimit.Limiter

	// Store enables token revocation. Nil disables the DELETE endpoint.
	Store credstore.Store

	// UpstreamBaseURL is the resource API the /api/ proxy forwards to.
	UpstreamBaseURL string

	// Transport overrides the proxy's base transport, for tests.
	Transport http.RoundTripper
}

// Server is the HTTP boundary: it answers token requests for resolved
// subjects and forwards resource API calls upstream with per-subject
// bearer injection.
type Server struct {
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
	server  *http.Server
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a Server for the given collaborators.
func New(opts Options) (*Server, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("server requires a token provider")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("server requires a subject resolver")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("server requires a rate limiter")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		limiter: opts.Limiter,
	}

	logger := slog.Default()
	limiterCtx := func(next http.Handler) http.Handler {
		return withLimiter(next, opts.Limiter)
	}

	tokenHandler := applyMiddlewares(s.handleToken(opts.Provider, opts.Resolver),
		Logging(logger),
		RequestID,
		Recovery,
		limiterCtx,
	)
	s.mux.Handle("GET /v1/token", tokenHandler)

	if opts.Store != nil {
		s.mux.Handle("DELETE /v1/token", applyMiddlewares(s.handleRevoke(opts.Store, opts.Resolver),
			Logging(logger),
			RequestID,
			Recovery,
			limiterCtx,
		))
	}

	if opts.UpstreamBaseURL != "" {
		proxyHandler, err := newUpstreamProxy(opts)
		if err != nil {
			return nil, err
		}
		s.mux.Handle("/api/", applyMiddlewares(s.resolveSubject(opts.Resolver, proxyHandler),
			Logging(logger),
			RequestID,
			Recovery,
			limiterCtx,
		))
	}

	return s, nil
}

// newUpstreamProxy builds the reverse proxy forwarding /api/ requests to
// the upstream resource API through the rate-limited, token-injecting
// transport.
func newUpstreamProxy(opts Options) (http.Handler, error) {
	base, err := url.Parse(opts.UpstreamBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = base.Scheme
			pr.Out.URL.Host = base.Host
			pr.Out.URL.Path = base.Path + pr.In.URL.Path[len("/api"):]
			pr.Out.Host = base.Host
		},
		Transport: &upstream.Transport{
			Source:  opts.Provider,
			Limiter: opts.Limiter,
			Base:    opts.Transport,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, err)
		},
	}, nil
}

// resolveSubject attaches the request's subject id to its context before
// the proxy's transport needs it.
func (s *Server) resolveSubject(resolver SubjectResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := resolver.SubjectFromRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(upstream.WithSubject(r.Context(), subjectID)))
	})
}

// ServeHTTP implements http.Handler. CORS preflight is answered before any
// routing or auth work.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error
// channel. The caller is responsible for calling Shutdown().
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
