package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/middleware"
	"github.com/windfall/phonoecho/internal/session"
	"github.com/windfall/phonoecho/pkg/response"
)

// maxRecordingBytes bounds an uploaded recording.
const maxRecordingBytes = 32 << 20

func handleError(log zerolog.Logger, w http.ResponseWriter, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		log.Error().Err(err).Msg("Unhandled error")
		response.Error(w, http.StatusInternalServerError, errors.Internal("internal server error"))
		return
	}
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		log.Error().Err(appErr).Msg("Request failed")
	}
	response.Error(w, appErr.HTTPStatus(), appErr)
}

func requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		response.Unauthorized(w, "missing session")
		return nil, false
	}
	return sess, true
}

func lessonIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		return 0, errors.Validation("lesson index must be a non-negative integer")
	}
	return idx, nil
}
