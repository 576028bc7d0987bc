package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/config"
	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/server/middleware"
	"github.com/jonathan/onboarding-survey/internal/server/ratelimit"
	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// ResponseStore persists completed surveys. *db.DB implements it.
type ResponseStore interface {
	SaveSurveyResponse(ctx context.Context, p types.SubmissionPayload) (uuid.UUID, time.Time, error)
	SetOnboarded(ctx context.Context, id uuid.UUID, onboarded bool, completedAt *time.Time) error
	GetSurveyStatus(ctx context.Context, userID uuid.UUID, draftKey string) (*db.SurveyStatus, error)
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Users       DBClient
	Responses   ResponseStore
	Controllers ControllerFactory
	UploadDir   string // served under cfg.Upload.PublicPrefix when set
	Logger      *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	log         *zap.Logger
	responses   ResponseStore
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	userService *UserService
	authHandler *AuthHandler
	surveys     *Registry
	uploads     fs.FS
}

// New wires the routes. It does not start listening.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Users == nil || deps.Responses == nil || deps.Controllers == nil {
		return nil, fmt.Errorf("users, responses and controllers are required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("server")

	passwordConfig, err := cfg.Password()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	jwtConfig, err := cfg.JWT()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		responses:   deps.Responses,
		rateLimiter: ratelimit.NewLimiter(ratelimit.FromConfig(cfg.RateLimit)),
		jwtService:  NewJWTService(jwtConfig),
		userService: NewUserService(deps.Users, passwordConfig, log),
		surveys:     NewRegistry(deps.Controllers, log),
	}
	if deps.UploadDir != "" {
		s.uploads = os.DirFS(deps.UploadDir)
	}
	s.authHandler = NewAuthHandler(s.userService, s.jwtService, log)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     zap.NewStdLog(log),
	}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator(), survey.LoginRedirect)
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", s.authHandler.Login)
	mux.Handle("GET /v1/users/me", protected(s.handleGetMe))
	mux.Handle("PUT /v1/users/me/password", protected(s.handleUpdatePassword))

	mux.Handle("GET /v1/survey", protected(s.handleGetSurvey))
	mux.Handle("GET /v1/survey/status", protected(s.handleSurveyStatus))
	mux.Handle("PATCH /v1/survey", protected(s.handlePatchSurvey))
	mux.Handle("PUT /v1/survey/fields/{field}", protected(s.handleSetField))
	mux.Handle("POST /v1/survey/fields/{field}/blur", protected(s.handleBlur))
	mux.Handle("GET /v1/survey/steps/{step}/validate", protected(s.handleValidateStep))
	mux.Handle("POST /v1/survey/next", protected(s.handleNext))
	mux.Handle("POST /v1/survey/prev", protected(s.handlePrev))
	mux.Handle("POST /v1/survey/skip", protected(s.handleSkip))
	mux.Handle("POST /v1/survey/submit", protected(s.handleSubmit))
	mux.Handle("POST /v1/survey/reset", protected(s.handleReset))
	mux.Handle("PUT /v1/survey/portfolio/url", protected(s.handlePortfolioURL))
	mux.Handle("POST /v1/survey/portfolio/file", protected(s.handlePortfolioFile))
	mux.Handle("DELETE /v1/survey/portfolio", protected(s.handleClearPortfolio))
	mux.Handle("POST /v1/survey/platforms/refresh", protected(s.handleRefreshPlatforms))
	mux.Handle("POST /v1/survey/platforms/{platform}", protected(s.handleConnectPlatform))
	mux.Handle("DELETE /v1/survey/platforms/{platform}", protected(s.handleDisconnectPlatform))
	mux.Handle("POST /v1/survey/responses", protected(s.handleCreateResponse))

	if s.uploads != nil {
		mux.HandleFunc("GET "+s.cfg.Upload.PublicPrefix+"{name}", s.handleUpload)
	}
	return mux
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	evictDone := make(chan struct{})
	evictCtx, stopEvict := context.WithCancel(ctx)
	go func() {
		defer close(evictDone)
		s.evictIdle(evictCtx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	stopEvict()
	<-evictDone

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Close()
	s.log.Info("server stopped")
	return serveErr
}

func (s *Server) evictIdle(ctx context.Context) {
	idle := s.cfg.Survey.ControllerIdleTimeout
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(idle/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.surveys.Evict(idle); n > 0 {
				s.log.Debug("evicted idle survey controllers", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the rate limiter and flushes every hosted survey's pending drafts.
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.surveys.Close()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withLogging writes one access log line per request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		}
		switch {
		case rec.status >= 500:
			s.log.Error("request", fields...)
		case rec.status >= 400:
			s.log.Warn("request", fields...)
		default:
			s.log.Info("request", fields...)
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(w, s.log, status, data)
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// extractClientID uses the connection's IP. Forwarded headers are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.log.Warn("rate limit exceeded",
		zap.String("client", s.extractClientID(r)),
		zap.String("path", r.URL.Path),
		zap.Int("limit", info.Limit))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
