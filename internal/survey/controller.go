// Package survey implements the onboarding survey engine: the form state store, the
// per-step validator and the controller that sequences steps, submits the finished survey
// and mirrors drafts to a DraftStore.
package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/onboarding-survey/internal/schemas"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// Default collaborator bounds.
const (
	DefaultSubmitTimeout = 30 * time.Second
	DefaultUploadTimeout = 2 * time.Minute
	DefaultDraftTimeout  = 5 * time.Second
)

const (
	msgUploadFailed  = "Failed to upload file. Please try again."
	msgConnectFailed = "Could not connect this account. Please check the username and try again."
)

var (
	// ErrResetNotAllowed is returned by ResetSubsequentSteps outside step 1.
	ErrResetNotAllowed = errors.New("subsequent steps can only be reset from the first step")
	// ErrSuperseded is returned when an upload or platform lookup was cleared or replaced
	// while it was running. Its result is discarded.
	ErrSuperseded = errors.New("superseded by a newer change")
	// ErrNoUploader is returned when the controller has no Uploader.
	ErrNoUploader = errors.New("portfolio uploads are not configured")
)

// UnknownPlatformError is returned for a platform without a registered connector.
type UnknownPlatformError struct {
	Platform types.Platform
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %s", e.Platform)
}

// Options configures a Controller. UserID and Submitter are required.
type Options struct {
	UserID     string
	Submitter  Submitter
	Session    SessionStore
	Drafts     DraftStore
	Uploader   Uploader
	Connectors []PlatformConnector
	Logger     *zap.Logger
	Now        func() time.Time

	SubmitTimeout   time.Duration
	UploadTimeout   time.Duration
	DraftTimeout    time.Duration
	MaxInteractions int

	// ResetDownstreamOnProfileChange clears steps 2+ when industry or education level
	// changes on step 1. Nil means true.
	ResetDownstreamOnProfileChange *bool
}

func (o *Options) normalize() error {
	if strings.TrimSpace(o.UserID) == "" {
		return fmt.Errorf("survey: user id is required")
	}
	if o.Submitter == nil {
		return fmt.Errorf("survey: submitter is required")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = DefaultSubmitTimeout
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = DefaultUploadTimeout
	}
	if o.DraftTimeout <= 0 {
		o.DraftTimeout = DefaultDraftTimeout
	}
	if o.MaxInteractions < 0 {
		o.MaxInteractions = 0
	}
	return nil
}

func (o *Options) resetDownstream() bool {
	return o.ResetDownstreamOnProfileChange == nil || *o.ResetDownstreamOnProfileChange
}

// StepResult reports the outcome of a navigation call.
type StepResult struct {
	Moved     bool                       `json:"moved"`
	Step      int                        `json:"step"`
	Errors    map[types.FieldName]string `json:"errors,omitempty"`
	Blocked   bool                       `json:"blocked,omitempty"`
	Submitted bool                       `json:"submitted,omitempty"`
}

// Controller owns one user's survey session. It is safe for concurrent use; collaborator
// calls run without the lock held.
type Controller struct {
	mu    sync.Mutex
	store *Store
	opts  Options
	log   *zap.Logger

	connectors    map[types.Platform]PlatformConnector
	stepEnteredAt time.Time
	submitAttempt uint64
	uploadAttempt uint64
	connectSeq    map[types.Platform]uint64
	closed        bool

	autosaves sync.WaitGroup
	draftSeq  uint64 // guarded by mu
	saveMu    sync.Mutex
	savedSeq  uint64 // guarded by saveMu
}

// New builds a controller and merges any prior draft from opts.Drafts before returning.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	c := &Controller{
		store:      NewStore(opts.Now, opts.MaxInteractions),
		opts:       opts,
		log:        opts.Logger.Named("survey").With(zap.String("user_id", opts.UserID)),
		connectors: make(map[types.Platform]PlatformConnector, len(opts.Connectors)),
		connectSeq: make(map[types.Platform]uint64),
	}
	for _, pc := range opts.Connectors {
		c.connectors[pc.Platform()] = pc
	}
	c.stepEnteredAt = opts.Now()

	if opts.Drafts != nil {
		c.loadDraft(ctx)
	}
	return c, nil
}

func (c *Controller) draftKey() string {
	return DraftKey(c.opts.UserID)
}

// loadDraft merges a stored draft into the fresh store. Unusable drafts are logged and ignored.
func (c *Controller) loadDraft(ctx context.Context) {
	blob, err := c.opts.Drafts.Load(ctx, c.draftKey())
	if err != nil {
		c.log.Warn("failed to load survey draft", zap.Error(err))
		return
	}
	if blob == nil {
		return
	}
	if err := schemas.ValidateDraft(blob); err != nil {
		c.log.Warn("discarding survey draft that failed schema validation", zap.Error(err))
		return
	}
	var draft types.FormData
	if err := json.Unmarshal(blob, &draft); err != nil {
		c.log.Warn("discarding undecodable survey draft", zap.Error(err))
		return
	}
	if draft.CompletedAt != nil {
		return
	}
	c.store.data = mergeDraft(c.store.data, draft)
	c.log.Info("resumed survey draft", zap.Int("step", c.store.data.CurrentStep))
}

func mergeDraft(fresh, draft types.FormData) types.FormData {
	out := draft
	out.TotalSteps = TotalSteps
	out.CurrentStep = min(max(draft.CurrentStep, StepBasicInfo), FinalInputStep)
	out.IsSubmitting = false
	out.SubmitError = nil
	out.IsDraft = true
	if out.StartedAt.IsZero() {
		out.StartedAt = fresh.StartedAt
	}
	if out.TimeSpentPerStep == nil {
		out.TimeSpentPerStep = map[int]time.Duration{}
	}
	if out.Portfolio.UploadStatus == types.UploadUploading {
		// The upload died with the previous session.
		out.Portfolio.UploadStatus = types.UploadNone
		out.Portfolio.FileProgress = 0
		out.Portfolio.File = nil
	}
	for _, p := range types.Platforms {
		out.PlatformConnections.Get(p).Loading = false
	}
	syncMissionOptions(&out)
	return out
}

// Snapshot returns a deep copy of the current form data.
func (c *Controller) Snapshot() types.FormData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// ReplaceFields merges a patch into the form.
func (c *Controller) ReplaceFields(p Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.data.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	if p.IsEmpty() {
		return nil
	}
	if p.PortfolioURL != nil {
		c.uploadAttempt++
	}
	before := c.profile()
	c.store.ReplaceFields(p)
	c.afterProfileEdit(before)
	c.scheduleAutosave()
	return nil
}

// ReplaceOneField applies a single-field edit.
func (c *Controller) ReplaceOneField(e FieldEdit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.data.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	if _, ok := e.(PortfolioURLEdit); ok {
		c.uploadAttempt++
	}
	before := c.profile()
	c.store.ReplaceOneField(e)
	c.afterProfileEdit(before)
	c.scheduleAutosave()
	return nil
}

// Blur applies the leave-field policy to field.
func (c *Controller) Blur(field types.FieldName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.data.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	c.store.Blur(field)
	c.scheduleAutosave()
	return nil
}

type profileAnswers struct {
	industry, education string
}

func (c *Controller) profile() profileAnswers {
	return profileAnswers{industry: c.store.data.Industry.Value, education: c.store.data.EducationLevel.Value}
}

func (c *Controller) afterProfileEdit(before profileAnswers) {
	if !c.opts.resetDownstream() || c.store.data.CurrentStep != StepBasicInfo {
		return
	}
	if c.profile() == before || !c.hasDownstreamAnswers() {
		return
	}
	c.store.resetDownstream()
	c.log.Debug("profile changed, cleared subsequent steps")
}

func (c *Controller) hasDownstreamAnswers() bool {
	d := &c.store.data
	if len(d.MissionFocus.Value) > 0 || len(d.StrengthAreas.Value) > 0 ||
		d.LearningPreference.Value != "" || d.ExperienceSummary.Value != "" ||
		d.Portfolio.URL != "" || d.Portfolio.File != nil {
		return true
	}
	for _, p := range types.Platforms {
		if d.PlatformConnections.Get(p).Connected {
			return true
		}
	}
	return false
}

// ResetSubsequentSteps clears every answer after step 1. It is only allowed on step 1.
func (c *Controller) ResetSubsequentSteps() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.data.CurrentStep != StepBasicInfo {
		return ErrResetNotAllowed
	}
	c.uploadAttempt++
	c.store.resetDownstream()
	return nil
}

// CanProceed reports whether step currently passes validation, without mutating anything.
func (c *Controller) CanProceed(step int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if step == StepPortfolio && c.store.data.Portfolio.UploadStatus == types.UploadUploading {
		return false
	}
	return Validate(step, &c.store.data).IsValid
}

// Advance validates the current step and moves forward. From the final input step it
// submits the survey instead; from the completion step it does nothing.
func (c *Controller) Advance(ctx context.Context) (StepResult, error) {
	return c.forward(ctx, types.ActionNextStep)
}

// Skip behaves like Advance but only on steps whose definition is skippable.
func (c *Controller) Skip(ctx context.Context) (StepResult, error) {
	c.mu.Lock()
	def, ok := StepByNumber(c.store.data.CurrentStep)
	step := c.store.data.CurrentStep
	c.mu.Unlock()
	if !ok || !def.Skippable {
		return StepResult{Step: step}, ErrStepNotSkippable
	}
	return c.forward(ctx, types.ActionSkipStep)
}

func (c *Controller) forward(ctx context.Context, action string) (StepResult, error) {
	c.mu.Lock()
	d := &c.store.data
	step := d.CurrentStep
	if step >= TotalSteps {
		c.mu.Unlock()
		return StepResult{Step: step}, nil
	}
	if step == StepPortfolio && d.Portfolio.UploadStatus == types.UploadUploading {
		c.mu.Unlock()
		return StepResult{Step: step, Blocked: true}, nil
	}

	def, _ := StepByNumber(step)
	res := Validate(step, d)
	c.store.setErrors(def.Fields, res.Errors)
	if !res.IsValid {
		c.scheduleAutosave()
		c.mu.Unlock()
		return StepResult{Step: step, Errors: res.Errors}, nil
	}

	if step == FinalInputStep {
		c.mu.Unlock()
		if err := c.Submit(ctx); err != nil {
			return StepResult{Step: c.currentStep()}, err
		}
		return StepResult{Moved: true, Step: TotalSteps, Submitted: true}, nil
	}

	spent := c.closeStep()
	c.store.record(action, nil, spent)
	d.CurrentStep = min(step+1, TotalSteps)
	c.stepEnteredAt = c.opts.Now()
	c.store.touch()
	c.scheduleAutosave()
	next := d.CurrentStep
	c.mu.Unlock()

	c.log.Debug("advanced survey step", zap.Int("from", step), zap.Int("to", next), zap.String("action", action))
	return StepResult{Moved: true, Step: next}, nil
}

// Retreat moves back one step, floored at 1. It never validates. Once the survey has been
// submitted it is refused.
func (c *Controller) Retreat() (StepResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &c.store.data
	if d.CompletedAt != nil || d.CurrentStep >= TotalSteps {
		return StepResult{Step: d.CurrentStep}, ErrAlreadyCompleted
	}
	c.closeStep()
	c.store.record(types.ActionPrevStep, nil, 0)
	prev := d.CurrentStep
	d.CurrentStep = max(d.CurrentStep-1, StepBasicInfo)
	c.stepEnteredAt = c.opts.Now()
	c.store.touch()
	c.scheduleAutosave()
	return StepResult{Moved: d.CurrentStep != prev, Step: d.CurrentStep}, nil
}

// closeStep adds the time spent on the current step since it was entered. Caller holds mu.
func (c *Controller) closeStep() time.Duration {
	now := c.opts.Now()
	spent := max(now.Sub(c.stepEnteredAt), 0)
	d := &c.store.data
	if d.TimeSpentPerStep == nil {
		d.TimeSpentPerStep = map[int]time.Duration{}
	}
	d.TimeSpentPerStep[d.CurrentStep] += spent
	c.stepEnteredAt = now
	return spent
}

func (c *Controller) currentStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.data.CurrentStep
}

// Submit runs the submission protocol. It is only accepted on the final input step. On
// failure the user-facing message is stored in SubmitError, the step is left unchanged and
// the error is returned.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	d := &c.store.data
	if d.CompletedAt != nil {
		c.mu.Unlock()
		return ErrAlreadyCompleted
	}
	if d.IsSubmitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if d.CurrentStep != FinalInputStep {
		c.mu.Unlock()
		return ErrNotOnFinalStep
	}
	d.IsSubmitting = true
	d.SubmitError = nil

	for _, step := range append(RequiredSteps(), FinalInputStep) {
		res := Validate(step, d)
		if res.IsValid {
			continue
		}
		def, _ := StepByNumber(step)
		c.store.setErrors(def.Fields, res.Errors)
		err := &ValidationError{Step: step}
		c.failSubmit(err)
		c.mu.Unlock()
		return err
	}

	spent := c.closeStep()
	completedAt := c.opts.Now()
	data := c.store.Snapshot()
	data.CompletedAt = &completedAt
	data.IsDraft = false
	data.IsSubmitting = false
	sub := types.Submission{
		Data:           data,
		CompletedAt:    completedAt,
		TotalTimeSpent: data.TotalTimeSpent(),
	}
	c.submitAttempt++
	attempt := c.submitAttempt
	c.mu.Unlock()

	log := c.log.With(zap.Uint64("attempt", attempt))
	log.Info("submitting survey")

	rec, err := c.readSession(ctx)
	if err == nil {
		sub.UserID = rec.ID
		var receipt types.SubmitReceipt
		receipt, err = c.callSubmitter(ctx, sub, attempt)
		if err == nil {
			if !receipt.CompletedAt.IsZero() {
				completedAt = receipt.CompletedAt
			}
			if serr := c.markOnboarded(ctx, *rec, completedAt); serr != nil {
				log.Warn("session record not confirmed after submission", zap.Error(serr))
			}
		}
	}

	c.mu.Lock()
	if err != nil {
		c.failSubmit(err)
		c.mu.Unlock()
		log.Warn("survey submission failed", zap.Error(err))
		return err
	}
	d.IsSubmitting = false
	d.IsDraft = false
	d.SubmitError = nil
	d.CompletedAt = &completedAt
	c.store.record(types.ActionNextStep, nil, spent)
	d.CurrentStep = TotalSteps
	c.stepEnteredAt = c.opts.Now()
	c.store.touch()
	c.mu.Unlock()

	log.Info("survey submitted", zap.Time("completed_at", completedAt))

	// Pending autosaves must land before the draft is removed.
	c.autosaves.Wait()
	if c.opts.Drafts != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.DraftTimeout)
		defer cancel()
		if derr := c.opts.Drafts.Delete(dctx, c.draftKey()); derr != nil {
			log.Warn("failed to delete survey draft", zap.Error(derr))
		}
	}
	return nil
}

// failSubmit records a failed attempt. Caller holds mu.
func (c *Controller) failSubmit(err error) {
	d := &c.store.data
	d.IsSubmitting = false
	d.SubmitError = types.StringPtr(UserMessage(err))
}

func (c *Controller) readSession(ctx context.Context) (*types.UserRecord, error) {
	if c.opts.Session == nil {
		id, _ := uuid.Parse(c.opts.UserID)
		return &types.UserRecord{ID: id}, nil
	}
	rec, err := c.opts.Session.Read(ctx)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	if rec == nil {
		return nil, &AuthError{Message: "user not authenticated"}
	}
	return rec, nil
}

type submitOutcome struct {
	receipt types.SubmitReceipt
	err     error
}

// callSubmitter bounds the Submitter call. A result arriving after the bound is dropped.
func (c *Controller) callSubmitter(ctx context.Context, sub types.Submission, attempt uint64) (types.SubmitReceipt, error) {
	sctx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()

	done := make(chan submitOutcome, 1)
	go func() {
		r, err := c.opts.Submitter.Submit(sctx, sub)
		select {
		case done <- submitOutcome{receipt: r, err: err}:
		default:
		}
		if sctx.Err() != nil {
			c.log.Debug("discarded late submission result", zap.Uint64("attempt", attempt), zap.Error(err))
		}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return types.SubmitReceipt{}, &TimeoutError{Operation: "submit", Cause: out.err}
		}
		return out.receipt, out.err
	case <-sctx.Done():
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			return types.SubmitReceipt{}, &TimeoutError{Operation: "submit", Cause: sctx.Err()}
		}
		return types.SubmitReceipt{}, sctx.Err()
	}
}

// markOnboarded writes the onboarding flag and confirms it by reading it back, retrying once.
func (c *Controller) markOnboarded(ctx context.Context, rec types.UserRecord, completedAt time.Time) error {
	if c.opts.Session == nil {
		return nil
	}
	rec.Onboarded = true
	rec.SurveyCompletedAt = &completedAt

	var lastErr error
	for range 2 {
		if err := c.opts.Session.Write(ctx, rec); err != nil {
			lastErr = fmt.Errorf("write session: %w", err)
			continue
		}
		got, err := c.opts.Session.Read(ctx)
		if err != nil {
			lastErr = fmt.Errorf("read back session: %w", err)
			continue
		}
		if got != nil && got.Onboarded && got.SurveyCompletedAt != nil {
			return nil
		}
		lastErr = errors.New("session read-back does not reflect onboarding")
	}
	return lastErr
}

// scheduleAutosave writes a draft in the background. Caller holds mu.
func (c *Controller) scheduleAutosave() {
	d := &c.store.data
	if c.opts.Drafts == nil || c.closed || d.CurrentStep <= StepBasicInfo || d.CompletedAt != nil {
		return
	}
	now := c.opts.Now()
	d.SavedAt = &now
	d.IsDraft = true

	blob, err := json.Marshal(c.store.data)
	if err != nil {
		c.log.Warn("failed to encode survey draft", zap.Error(err))
		return
	}
	key := c.draftKey()
	c.draftSeq++
	seq := c.draftSeq
	c.autosaves.Add(1)
	go func() {
		defer c.autosaves.Done()
		c.saveMu.Lock()
		defer c.saveMu.Unlock()
		// A newer snapshot already landed.
		if seq < c.savedSeq {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DraftTimeout)
		defer cancel()
		if err := c.opts.Drafts.Save(ctx, key, blob); err != nil {
			c.log.Warn("failed to save survey draft", zap.Error(err))
			return
		}
		c.savedSeq = seq
	}()
}

// SetPortfolioURL switches the portfolio to a URL and validates it.
func (c *Controller) SetPortfolioURL(url string) error {
	url = strings.TrimSpace(url)
	return c.ReplaceOneField(PortfolioURLEdit{Value: url, Error: errPtr(ValidatePortfolioURL(url))})
}

// ClearPortfolio removes the portfolio answer and abandons any in-flight upload.
func (c *Controller) ClearPortfolio() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.data.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	c.uploadAttempt++
	c.store.data.Portfolio = types.PortfolioAnswer{}
	c.store.touch()
	c.scheduleAutosave()
	return nil
}

// UploadPortfolio validates file and streams r to the Uploader, mirroring progress into
// the form. Form editing continues while the upload runs.
func (c *Controller) UploadPortfolio(ctx context.Context, file types.PortfolioFile, r io.Reader) (types.UploadReceipt, error) {
	if c.opts.Uploader == nil {
		return types.UploadReceipt{}, ErrNoUploader
	}

	c.mu.Lock()
	p := &c.store.data.Portfolio
	if c.store.data.CompletedAt != nil {
		c.mu.Unlock()
		return types.UploadReceipt{}, ErrAlreadyCompleted
	}
	if p.UploadStatus == types.UploadUploading {
		c.mu.Unlock()
		return types.UploadReceipt{}, ErrUploadInProgress
	}
	f := file
	selectFileChannel(p)
	p.File = &f
	p.UploadedURL, p.UploadedFilename = "", ""
	if msg := ValidatePortfolioFile(&f); msg != "" {
		p.FileError = &msg
		p.UploadStatus = types.UploadError
		p.FileProgress = 0
		c.store.touch()
		c.scheduleAutosave()
		c.mu.Unlock()
		return types.UploadReceipt{}, &ValidationError{Step: StepPortfolio, Message: msg}
	}
	p.FileError = nil
	p.FileProgress = 0
	p.UploadStatus = types.UploadUploading
	c.uploadAttempt++
	attempt := c.uploadAttempt
	c.store.record(types.ActionUpload, map[string]any{"name": f.Name, "size": f.Size, "type": f.Type}, 0)
	c.store.touch()
	c.mu.Unlock()

	uctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
	defer cancel()
	receipt, err := c.opts.Uploader.Upload(uctx, f, r, func(pct int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if attempt != c.uploadAttempt || c.store.data.Portfolio.UploadStatus != types.UploadUploading {
			return
		}
		c.store.data.Portfolio.FileProgress = min(max(pct, 0), 100)
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = &TimeoutError{Operation: "upload", Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.uploadAttempt {
		return types.UploadReceipt{}, ErrSuperseded
	}
	p = &c.store.data.Portfolio
	if err != nil {
		p.UploadStatus = types.UploadError
		p.FileError = types.StringPtr(uploadMessage(err))
		c.store.touch()
		c.scheduleAutosave()
		c.log.Warn("portfolio upload failed", zap.String("file", f.Name), zap.Error(err))
		return types.UploadReceipt{}, err
	}
	p.UploadStatus = types.UploadSuccess
	p.FileProgress = 100
	p.UploadedURL = receipt.URL
	p.UploadedFilename = receipt.Filename
	c.store.touch()
	c.scheduleAutosave()
	c.log.Info("portfolio uploaded", zap.String("file", receipt.Filename), zap.Int64("size", receipt.Size))
	return receipt, nil
}

func uploadMessage(err error) string {
	var (
		timeoutErr *TimeoutError
		httpErr    *HTTPError
		valErr     *ValidationError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return msgTimeout
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &httpErr) && httpErr.Message != "":
		return httpErr.Message
	default:
		return msgUploadFailed
	}
}

// ConnectPlatform looks up username on platform and records the connection.
func (c *Controller) ConnectPlatform(ctx context.Context, platform types.Platform, username string) (types.PlatformConnection, error) {
	connector, ok := c.connectors[platform]
	if !ok || !platform.Valid() {
		return types.PlatformConnection{}, &UnknownPlatformError{Platform: platform}
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return types.PlatformConnection{}, &ValidationError{Step: StepPlatformConnections, Message: "Username is required"}
	}

	c.mu.Lock()
	if c.store.data.CompletedAt != nil {
		c.mu.Unlock()
		return types.PlatformConnection{}, ErrAlreadyCompleted
	}
	rec := c.store.data.PlatformConnections.Get(platform)
	rec.Loading = true
	rec.Error = nil
	c.connectSeq[platform]++
	seq := c.connectSeq[platform]
	c.mu.Unlock()

	conn, err := connector.Lookup(ctx, username)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.connectSeq[platform] {
		return types.PlatformConnection{}, ErrSuperseded
	}
	rec = c.store.data.PlatformConnections.Get(platform)
	if err != nil {
		*rec = types.PlatformConnection{Error: types.StringPtr(connectMessage(err))}
		c.store.touch()
		c.log.Warn("platform connection failed", zap.String("platform", string(platform)), zap.Error(err))
		return types.PlatformConnection{}, err
	}
	conn.Connected = true
	conn.Loading = false
	conn.Error = nil
	if conn.Username == "" {
		conn.Username = username
	}
	*rec = conn
	c.store.record(types.ActionConnect, map[string]any{"platform": string(platform), "username": conn.Username}, 0)
	c.store.touch()
	c.scheduleAutosave()
	out := c.store.data.Clone()
	return *out.PlatformConnections.Get(platform), nil
}

func connectMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	return msgConnectFailed
}

// DisconnectPlatform resets the platform's record to its empty default.
func (c *Controller) DisconnectPlatform(platform types.Platform) error {
	if !platform.Valid() {
		return &UnknownPlatformError{Platform: platform}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.data.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	c.connectSeq[platform]++
	*c.store.data.PlatformConnections.Get(platform) = types.PlatformConnection{}
	c.store.record(types.ActionDisconnect, map[string]any{"platform": string(platform)}, 0)
	c.store.touch()
	c.scheduleAutosave()
	return nil
}

// RefreshPlatforms re-runs the lookup for every connected platform concurrently.
func (c *Controller) RefreshPlatforms(ctx context.Context) error {
	c.mu.Lock()
	usernames := map[types.Platform]string{}
	for _, p := range types.Platforms {
		if rec := c.store.data.PlatformConnections.Get(p); rec.Connected {
			usernames[p] = rec.Username
		}
	}
	c.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for p, username := range usernames {
		if _, ok := c.connectors[p]; !ok {
			continue
		}
		g.Go(func() error {
			if _, err := c.ConnectPlatform(gCtx, p, username); err != nil {
				return fmt.Errorf("refresh %s: %w", p, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops autosaving and waits for in-flight draft writes.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.autosaves.Wait()
}
