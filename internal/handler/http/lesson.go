package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/pkg/response"
)

// LessonHandler handles lessons, attempts and haptic playback.
type LessonHandler struct {
	log             zerolog.Logger
	practiceService *service.PracticeService
	hapticsService  *service.HapticsService
}

// NewLessonHandler creates a new LessonHandler.
func NewLessonHandler(log zerolog.Logger, practiceService *service.PracticeService, hapticsService *service.HapticsService) *LessonHandler {
	return &LessonHandler{
		log:             log,
		practiceService: practiceService,
		hapticsService:  hapticsService,
	}
}

// List handles GET /api/v1/lessons
func (h *LessonHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	lessons, err := h.practiceService.ListLessons(r.Context(), sess)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, lessons, &response.Meta{Total: len(lessons)})
}

// Open handles GET /api/v1/lessons/{index}
func (h *LessonHandler) Open(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	idx, err := lessonIndex(r)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	view, err := h.practiceService.OpenLesson(r.Context(), sess, idx)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.JSON(w, http.StatusOK, view)
}

// Video handles GET /api/v1/lessons/{index}/video
func (h *LessonHandler) Video(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	idx, err := lessonIndex(r)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	path, err := h.practiceService.LessonVideo(r.Context(), sess, idx)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	http.ServeFile(w, r, path)
}

// History handles GET /api/v1/lessons/{index}/history
func (h *LessonHandler) History(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	idx, err := lessonIndex(r)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	view, err := h.practiceService.LessonHistory(r.Context(), sess, idx)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.JSON(w, http.StatusOK, view)
}

// SubmitAttempt handles POST /api/v1/lessons/{index}/attempts
//
// Request: multipart/form-data with a WAV "audio" field
func (h *LessonHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	idx, err := lessonIndex(r)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRecordingBytes)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		handleError(h.log, w, errors.Validation("failed to parse multipart form"))
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		handleError(h.log, w, errors.Validation("audio is required"))
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		handleError(h.log, w, errors.Validation("failed to read audio file"))
		return
	}

	result, err := h.practiceService.SubmitAttempt(r.Context(), sess, idx, audioData)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.Created(w, result)
}

// Artifacts handles GET /api/v1/attempts/{id}/artifacts
func (h *LessonHandler) Artifacts(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	artifacts, err := h.practiceService.Artifacts(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.JSON(w, http.StatusOK, artifacts)
}

// StartHaptics handles POST /api/v1/lessons/{index}/haptics
func (h *LessonHandler) StartHaptics(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	idx, err := lessonIndex(r)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	var req service.HapticsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			response.BadRequest(w, "invalid request body")
			return
		}
	}

	result, err := h.hapticsService.Start(r.Context(), sess, idx, req)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.JSON(w, http.StatusAccepted, result)
}

// StopHaptics handles DELETE /api/v1/lessons/{index}/haptics
func (h *LessonHandler) StopHaptics(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.hapticsService.Stop(sess); err != nil {
		handleError(h.log, w, err)
		return
	}
	response.NoContent(w)
}
