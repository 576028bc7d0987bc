package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/onboarding-survey/internal/config"
	"github.com/jonathan/onboarding-survey/internal/survey"
)

// errRegistryClosed is returned once the server has begun shutting down.
var errRegistryClosed = errors.New("survey registry is closed")

// ControllerFactory builds the survey controller for one user.
type ControllerFactory func(ctx context.Context, userID uuid.UUID) (*survey.Controller, error)

type hosted struct {
	c        *survey.Controller
	lastUsed time.Time
}

// Registry hosts one survey controller per signed-in user. Concurrent first requests for
// the same user share a single construction.
type Registry struct {
	factory ControllerFactory
	group   singleflight.Group
	log     *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	byUser map[uuid.UUID]*hosted
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry(factory ControllerFactory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factory: factory,
		log:     logger.Named("registry"),
		now:     time.Now,
		byUser:  make(map[uuid.UUID]*hosted),
	}
}

// Get returns the user's controller, creating it (and loading their draft) on first use.
func (r *Registry) Get(ctx context.Context, userID uuid.UUID) (*survey.Controller, error) {
	if c, ok := r.lookup(userID); ok {
		return c, nil
	}

	v, err, _ := r.group.Do(userID.String(), func() (any, error) {
		if c, ok := r.lookup(userID); ok {
			return c, nil
		}
		// Shared by every waiter, so one caller's cancellation must not abort it.
		c, err := r.factory(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			c.Close()
			return nil, errRegistryClosed
		}
		r.byUser[userID] = &hosted{c: c, lastUsed: r.now()}
		r.log.Debug("survey controller created", zap.String("user_id", userID.String()))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*survey.Controller), nil
}

// Peek returns the user's controller without creating one.
func (r *Registry) Peek(userID uuid.UUID) (*survey.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return h.c, true
}

func (r *Registry) lookup(userID uuid.UUID) (*survey.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	h.lastUsed = r.now()
	return h.c, true
}

// Len reports how many controllers are hosted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Evict closes and forgets controllers idle for longer than maxIdle. Their drafts stay in
// the draft store, so the next request resumes where the user left off.
func (r *Registry) Evict(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*survey.Controller
	for id, h := range r.byUser {
		if h.lastUsed.Before(cutoff) {
			idle = append(idle, h.c)
			delete(r.byUser, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	return len(idle)
}

// Forget closes the user's controller, if any.
func (r *Registry) Forget(userID uuid.UUID) {
	r.mu.Lock()
	h, ok := r.byUser[userID]
	delete(r.byUser, userID)
	r.mu.Unlock()
	if ok {
		h.c.Close()
	}
}

// Close closes every controller, waiting for their pending draft saves.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*survey.Controller, 0, len(r.byUser))
	for _, h := range r.byUser {
		all = append(all, h.c)
	}
	clear(r.byUser)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()
}

// NewControllerFactory builds controllers from shared collaborators. base supplies the
// submitter, draft store, uploader, connectors and logger; sessions binds each user's record.
func NewControllerFactory(cfg config.SurveyConfig, base survey.Options, sessions func(uuid.UUID) survey.SessionStore) ControllerFactory {
	reset := cfg.ResetDownstreamOnProfileChange
	return func(ctx context.Context, userID uuid.UUID) (*survey.Controller, error) {
		opts := base
		opts.UserID = userID.String()
		if sessions != nil {
			opts.Session = sessions(userID)
		}
		opts.SubmitTimeout = cfg.SubmitTimeout
		opts.UploadTimeout = cfg.UploadTimeout
		opts.DraftTimeout = cfg.DraftTimeout
		opts.MaxInteractions = cfg.MaxInteractions
		opts.ResetDownstreamOnProfileChange = &reset
		return survey.New(ctx, opts)
	}
}
