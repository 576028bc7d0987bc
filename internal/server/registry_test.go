package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/onboarding-survey/internal/survey"
)

type countingFactory struct {
	calls   atomic.Int32
	release chan struct{}
	drafts  *memDrafts
}

func (f *countingFactory) build(ctx context.Context, userID uuid.UUID) (*survey.Controller, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	opts := survey.Options{
		UserID:    userID.String(),
		Submitter: newMemStore(),
	}
	// A nil *memDrafts inside the interface would look like a configured store.
	if f.drafts != nil {
		opts.Drafts = f.drafts
	}
	return survey.New(ctx, opts)
}

func TestRegistry_ConcurrentGetBuildsOnce(t *testing.T) {
	f := &countingFactory{release: make(chan struct{})}
	reg := NewRegistry(f.build, nil)
	defer reg.Close()
	userID := uuid.New()

	const callers = 8
	got := make([]*survey.Controller, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.Get(context.Background(), userID)
			assert.NoError(t, err)
			got[i] = c
		}()
	}
	// Give every caller a chance to join the in-flight build.
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, c := range got {
		assert.Same(t, got[0], c)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_GetResumesSavedDraft(t *testing.T) {
	userID := uuid.New()
	d := survey.NewStore(nil, 0).Snapshot()
	d.FullName.Value = "Jane Doe"
	d.CurrentStep = survey.StepMissionFocus
	d.IsDraft = true
	blob, err := json.Marshal(d)
	require.NoError(t, err)

	drafts := newMemDrafts()
	require.NoError(t, drafts.Save(context.Background(), survey.DraftKey(userID.String()), blob))

	f := &countingFactory{drafts: drafts}
	reg := NewRegistry(f.build, nil)
	defer reg.Close()

	c, err := reg.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.Snapshot().FullName.Value)
}

func TestRegistry_CancelledCallerDoesNotAbortBuild(t *testing.T) {
	f := &countingFactory{}
	reg := NewRegistry(f.build, nil)
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := reg.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRegistry_PeekDoesNotCreate(t *testing.T) {
	f := &countingFactory{}
	reg := NewRegistry(f.build, nil)
	defer reg.Close()
	userID := uuid.New()

	_, ok := reg.Peek(userID)
	assert.False(t, ok)
	assert.Zero(t, f.calls.Load())

	c, err := reg.Get(context.Background(), userID)
	require.NoError(t, err)
	peeked, ok := reg.Peek(userID)
	require.True(t, ok)
	assert.Same(t, c, peeked)
}

func TestRegistry_Evict(t *testing.T) {
	f := &countingFactory{}
	reg := NewRegistry(f.build, nil)
	defer reg.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	stale, fresh := uuid.New(), uuid.New()
	_, err := reg.Get(context.Background(), stale)
	require.NoError(t, err)
	now = now.Add(20 * time.Minute)
	_, err = reg.Get(context.Background(), fresh)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, reg.Evict(30*time.Minute))
	_, ok := reg.Peek(stale)
	assert.False(t, ok)
	_, ok = reg.Peek(fresh)
	assert.True(t, ok)

	// The next request rebuilds the evicted user's survey.
	_, err = reg.Get(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestRegistry_Close(t *testing.T) {
	f := &countingFactory{}
	reg := NewRegistry(f.build, nil)
	for range 3 {
		_, err := reg.Get(context.Background(), uuid.New())
		require.NoError(t, err)
	}

	reg.Close()
	assert.Zero(t, reg.Len())
	_, err := reg.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errRegistryClosed)
}

func TestNewControllerFactory_AppliesSurveyConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Survey.ResetDownstreamOnProfileChange = false
	store := newMemStore()
	userID, err := store.CreateUser(context.Background(), "Jane Doe", "jane@example.com", "")
	require.NoError(t, err)

	var bound uuid.UUID
	factory := NewControllerFactory(cfg.Survey, survey.Options{Submitter: store}, func(id uuid.UUID) survey.SessionStore {
		bound = id
		return memSession{store: store, userID: id}
	})
	c, err := factory(context.Background(), userID)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, userID, bound)

	// With the reset disabled, a profile change keeps later answers.
	require.NoError(t, c.ReplaceFields(survey.Patch{Industry: ptr("Technology & Software"), LearningPreference: ptr("both")}))
	require.NoError(t, c.ReplaceFields(survey.Patch{Industry: ptr("Finance & Banking")}))
	assert.Equal(t, "both", c.Snapshot().LearningPreference.Value)
}
