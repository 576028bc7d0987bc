package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/server/middleware"
	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// multipartOverhead is the slack allowed above the file limit for multipart framing.
const multipartOverhead = 1 << 20

// blurFields are the fields a client may report as left.
var blurFields = []types.FieldName{
	types.FieldFullName,
	types.FieldEducationLevel,
	types.FieldIndustry,
	types.FieldMissionFocus,
	types.FieldStrengthAreas,
	types.FieldLearningPreference,
	types.FieldPortfolioURL,
	types.FieldPortfolioFile,
	types.FieldExperienceSummary,
}

// surveyState is returned by every survey endpoint that changes the form.
type surveyState struct {
	Form       types.FormData     `json:"form"`
	Steps      []survey.StepDef   `json:"steps"`
	CanProceed bool               `json:"canProceed"`
	Result     *survey.StepResult `json:"result,omitempty"`
}

type statusResponse struct {
	db.SurveyStatus
	Active      bool `json:"active"`
	CurrentStep int  `json:"current_step,omitempty"`
}

type portfolioURLRequest struct {
	URL string `json:"url"`
}

type connectRequest struct {
	Username string `json:"username"`
}

// controller resolves the caller's survey. It writes the error response itself.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*survey.Controller, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.jsonResponse(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized", Redirect: survey.LoginRedirect})
		return nil, false
	}
	c, err := s.surveys.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, errRegistryClosed) {
			s.errorResponse(w, http.StatusServiceUnavailable, "Server is shutting down")
			return nil, false
		}
		s.surveyError(w, err)
		return nil, false
	}
	return c, true
}

func (s *Server) surveyError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("survey request failed", zap.Error(err))
	}
	s.jsonResponse(w, status, surveyErrorBody(err))
}

func (s *Server) writeState(w http.ResponseWriter, c *survey.Controller, res *survey.StepResult) {
	form := c.Snapshot()
	s.jsonResponse(w, http.StatusOK, surveyState{
		Form:       form,
		Steps:      survey.Steps,
		CanProceed: c.CanProceed(form.CurrentStep),
		Result:     res,
	})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	s.writeState(w, c, nil)
}

// handleSurveyStatus answers without building a controller, so polling does not load drafts.
func (s *Server) handleSurveyStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	st, err := s.responses.GetSurveyStatus(r.Context(), userID, survey.DraftKey(userID.String()))
	if err != nil {
		s.log.Error("failed to get survey status", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get survey status")
		return
	}
	if st == nil {
		s.errorResponse(w, http.StatusNotFound, "User not found")
		return
	}

	resp := statusResponse{SurveyStatus: *st}
	if c, live := s.surveys.Peek(userID); live {
		form := c.Snapshot()
		resp.Active = true
		resp.CurrentStep = form.CurrentStep
		if resp.LastModified == nil || form.UpdatedAt.After(*resp.LastModified) {
			at := form.UpdatedAt
			resp.LastModified = &at
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handlePatchSurvey(w http.ResponseWriter, r *http.Request) {
	var p survey.Patch
	if !s.decodeBody(w, r, &p) {
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.ReplaceFields(p); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !s.decodeBody(w, r, &raw) {
		return
	}
	edit, err := survey.DecodeFieldEdit(types.FieldName(r.PathValue("field")), raw)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.ReplaceOneField(edit); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleBlur(w http.ResponseWriter, r *http.Request) {
	field := types.FieldName(r.PathValue("field"))
	if !slices.Contains(blurFields, field) {
		s.errorResponse(w, http.StatusBadRequest, "unknown field: "+string(field))
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.Blur(field); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleValidateStep(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(r.PathValue("step"))
	if _, known := survey.StepByNumber(step); err != nil || !known {
		s.errorResponse(w, http.StatusBadRequest, "Invalid step")
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	form := c.Snapshot()
	s.jsonResponse(w, http.StatusOK, survey.Validate(step, &form))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, func(c *survey.Controller) (survey.StepResult, error) { return c.Advance(r.Context()) })
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, func(c *survey.Controller) (survey.StepResult, error) { return c.Retreat() })
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, func(c *survey.Controller) (survey.StepResult, error) { return c.Skip(r.Context()) })
}

// navigate reports a blocked move as 200 with the step's errors; only failures are non-2xx.
func (s *Server) navigate(w http.ResponseWriter, r *http.Request, move func(*survey.Controller) (survey.StepResult, error)) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	res, err := move(c)
	if err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, &res)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.Submit(r.Context()); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.ResetSubsequentSteps(); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handlePortfolioURL(w http.ResponseWriter, r *http.Request) {
	var req portfolioURLRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.SetPortfolioURL(req.URL); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handlePortfolioFile(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Upload.MaxBytes
	tooLargeMsg := fmt.Sprintf("File size must be less than %dMB", max(limit/(1024*1024), 1))
	if r.ContentLength > limit+multipartOverhead {
		s.errorResponse(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.log.Warn("failed to remove multipart temp files", zap.Error(err))
		}
	}()

	f, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer f.Close()

	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	file := types.PortfolioFile{Name: header.Filename, Size: header.Size, Type: header.Header.Get("Content-Type")}
	if _, err := c.UploadPortfolio(r.Context(), file, f); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleClearPortfolio(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.ClearPortfolio(); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleConnectPlatform(w http.ResponseWriter, r *http.Request) {
	platform := types.Platform(r.PathValue("platform"))
	if !platform.Valid() {
		s.surveyError(w, &survey.UnknownPlatformError{Platform: platform})
		return
	}
	var req connectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if _, err := c.ConnectPlatform(r.Context(), platform, req.Username); err != nil {
		// The failure is also recorded on the platform's record for the UI.
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleDisconnectPlatform(w http.ResponseWriter, r *http.Request) {
	platform := types.Platform(r.PathValue("platform"))
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.DisconnectPlatform(platform); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

func (s *Server) handleRefreshPlatforms(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	if err := c.RefreshPlatforms(r.Context()); err != nil {
		s.surveyError(w, err)
		return
	}
	s.writeState(w, c, nil)
}

// handleCreateResponse stores a survey completed by a client that runs the form itself.
func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var p types.SubmissionPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if p.UserID != uuid.Nil && p.UserID != userID {
		s.errorResponse(w, http.StatusForbidden, "Cannot submit a survey for another user")
		return
	}
	p.UserID = userID
	if p.Metadata.CompletedAt.IsZero() {
		p.Metadata.CompletedAt = time.Now().UTC()
	}

	if step, errs := validatePayload(&p); step != 0 {
		s.jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":  (&survey.ValidationError{Step: step}).Error(),
			"step":   step,
			"errors": errs,
		})
		return
	}

	id, completedAt, err := s.responses.SaveSurveyResponse(r.Context(), p)
	if err != nil {
		s.log.Error("failed to save survey response", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to save survey")
		return
	}
	if err := s.responses.SetOnboarded(r.Context(), userID, true, &completedAt); err != nil {
		s.log.Error("failed to mark user onboarded", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to save survey")
		return
	}
	s.surveys.Forget(userID)
	s.jsonResponse(w, http.StatusCreated, types.SubmitReceipt{ResponseID: id, CompletedAt: completedAt})
}

// validatePayload runs the step rules over a flattened submission. It returns the first
// failing step, or 0.
func validatePayload(p *types.SubmissionPayload) (int, map[types.FieldName]string) {
	d := types.FormData{}
	d.FullName.Value = p.FullName
	d.EducationLevel.Value = p.EducationLevel
	d.Industry.Value = p.Industry
	d.MissionFocus.Value = p.MissionFocus
	d.StrengthAreas.Value = p.StrengthAreas
	d.LearningPreference.Value = p.LearningPreference
	d.ExperienceSummary.Value = p.ExperienceSummary
	if p.Portfolio.URL != nil {
		d.Portfolio.URL = *p.Portfolio.URL
	}
	if f := p.Portfolio.File; f != nil {
		d.Portfolio.File = &types.PortfolioFile{Name: f.Name, Size: f.Size, Type: f.Type}
	}

	steps := append(survey.RequiredSteps(), survey.StepPortfolio, survey.StepExperienceSummary)
	for _, step := range steps {
		if res := survey.Validate(step, &d); !res.IsValid {
			return step, res.Errors
		}
	}
	return 0, nil
}

// handleUpload serves a stored portfolio file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validUploadName(name) {
		s.errorResponse(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFileFS(w, r, s.uploads, name)
}

func validUploadName(name string) bool {
	return fs.ValidPath(name) && name != "." && !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}
