package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/config"
	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

var errStore = errors.New("store unavailable")

// memStore is an in-memory account and response store.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*db.User
	responses map[uuid.UUID]types.SubmissionPayload
	saves     int

	updatePasswordErr error
	saveErr           error
	deleted           []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[uuid.UUID]*db.User),
		responses: make(map[uuid.UUID]types.SubmissionPayload),
	}
}

func (m *memStore) CheckEmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateUser(_ context.Context, name, email, phone string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	now := time.Now()
	m.users[id] = &db.User{ID: id, Name: name, Email: email, Phone: phone, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	u, ok := m.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.PasswordHash, u.PasswordSet = hash, true
	return nil
}

func (m *memStore) GetUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) SaveSurveyResponse(_ context.Context, p types.SubmissionPayload) (uuid.UUID, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return uuid.Nil, time.Time{}, m.saveErr
	}
	m.saves++
	m.responses[p.UserID] = p
	return uuid.NewSHA1(uuid.NameSpaceOID, p.UserID[:]), p.Metadata.CompletedAt, nil
}

func (m *memStore) Submit(ctx context.Context, sub types.Submission) (types.SubmitReceipt, error) {
	id, at, err := m.SaveSurveyResponse(ctx, types.NewSubmissionPayload(sub))
	if err != nil {
		return types.SubmitReceipt{}, err
	}
	return types.SubmitReceipt{ResponseID: id, CompletedAt: at}, nil
}

func (m *memStore) SetOnboarded(_ context.Context, id uuid.UUID, onboarded bool, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.Onboarded, u.SurveyCompletedAt = onboarded, completedAt
	return nil
}

func (m *memStore) GetSurveyStatus(_ context.Context, userID uuid.UUID, _ string) (*db.SurveyStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	_, completed := m.responses[userID]
	return &db.SurveyStatus{Completed: completed, Onboarded: u.Onboarded, CompletedAt: u.SurveyCompletedAt}, nil
}

func (m *memStore) Response(userID uuid.UUID) (types.SubmissionPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.responses[userID]
	return p, ok
}

// memSession adapts memStore to the survey's session record.
type memSession struct {
	store  *memStore
	userID uuid.UUID
}

func (s memSession) Read(ctx context.Context) (*types.UserRecord, error) {
	u, err := s.store.GetUser(ctx, s.userID)
	if err != nil || u == nil {
		return nil, err
	}
	return &types.UserRecord{ID: u.ID, Onboarded: u.Onboarded, SurveyCompletedAt: u.SurveyCompletedAt}, nil
}

func (s memSession) Write(ctx context.Context, rec types.UserRecord) error {
	return s.store.SetOnboarded(ctx, rec.ID, rec.Onboarded, rec.SurveyCompletedAt)
}

type memDrafts struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemDrafts() *memDrafts {
	return &memDrafts{blobs: map[string][]byte{}}
}

func (d *memDrafts) Save(_ context.Context, key string, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (d *memDrafts) Load(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	blob, ok := d.blobs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}

func (d *memDrafts) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.blobs, key)
	return nil
}

type stubConnector struct{ platform types.Platform }

func (c stubConnector) Platform() types.Platform { return c.platform }

func (c stubConnector) Lookup(_ context.Context, username string) (types.PlatformConnection, error) {
	if username == "ghost" {
		return types.PlatformConnection{}, &survey.HTTPError{Status: http.StatusNotFound, Message: "GitHub user not found"}
	}
	return types.PlatformConnection{Username: username, UserID: "7", Profile: map[string]any{}}, nil
}

type testEnv struct {
	srv    *Server
	store  *memStore
	drafts *memDrafts
	jwt    *JWTService
	cfg    *config.Config
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("BCRYPT_COST", "10")
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.RateLimit.Enabled = false
	cfg.Survey.DraftTimeout = time.Second
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	env := &testEnv{store: newMemStore(), drafts: newMemDrafts(), cfg: cfg}

	base := survey.Options{
		Submitter:  env.store,
		Drafts:     env.drafts,
		Connectors: []survey.PlatformConnector{stubConnector{platform: types.PlatformGitHub}},
		Logger:     zap.NewNop(),
	}
	deps := Deps{
		Users:     env.store,
		Responses: env.store,
		Controllers: NewControllerFactory(cfg.Survey, base, func(id uuid.UUID) survey.SessionStore {
			return memSession{store: env.store, userID: id}
		}),
		Logger: zap.NewNop(),
	}
	for _, fn := range mutate {
		fn(cfg, &deps)
	}

	srv, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	env.srv = srv
	env.jwt = srv.jwtService
	return env
}

// user creates an account directly in the store and returns it with a bearer token.
func (e *testEnv) user(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	id, err := e.store.CreateUser(context.Background(), "Jane Doe", uuid.NewString()+"@example.com", "")
	require.NoError(t, err)
	token, err := e.jwt.GenerateToken(id)
	require.NoError(t, err)
	return id, token
}

// memUploader accepts any file and counts the bytes it received.
type memUploader struct {
	mu    sync.Mutex
	bytes int64
}

func (u *memUploader) Upload(_ context.Context, file types.PortfolioFile, r io.Reader, onProgress func(int)) (types.UploadReceipt, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return types.UploadReceipt{}, err
	}
	u.mu.Lock()
	u.bytes += n
	u.mu.Unlock()
	onProgress(100)
	return types.UploadReceipt{URL: "/uploads/stored-" + file.Name, Filename: "stored-" + file.Name, Size: n, Type: file.Type}, nil
}
