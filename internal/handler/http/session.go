package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/pkg/response"
)

// SessionHandler handles login and logout.
type SessionHandler struct {
	log            zerolog.Logger
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(log zerolog.Logger, sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		log:            log,
		sessionService: sessionService,
	}
}

// Login handles POST /api/v1/sessions
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.User == "" {
		response.BadRequest(w, "user is required")
		return
	}

	result, err := h.sessionService.Login(req)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.Created(w, result)
}

// Logout handles DELETE /api/v1/sessions
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.sessionService.Logout(sess.ID); err != nil {
		handleError(h.log, w, err)
		return
	}
	response.NoContent(w)
}
