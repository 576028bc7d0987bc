package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/server/middleware"
)

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := s.userService.GetUser(r.Context(), userID)
	if err != nil {
		status := HTTPStatus(err)
		if status == http.StatusInternalServerError {
			s.log.Error("failed to get user", zap.Error(err))
			s.errorResponse(w, status, "Internal server error")
			return
		}
		s.errorResponse(w, status, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"user":         user,
		"redirect_url": user.LandingURL(),
	})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.authHandler.UpdatePasswordWithUserID(w, r, userID)
}
