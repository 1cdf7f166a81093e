package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/pkg/response"
)

// FeedbackHandler serves coaching feedback as one JSON document. The
// WebSocket endpoint streams the same feedback chunk by chunk.
type FeedbackHandler struct {
	log             zerolog.Logger
	feedbackService *service.FeedbackService
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(log zerolog.Logger, feedbackService *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{
		log:             log,
		feedbackService: feedbackService,
	}
}

// Get handles GET /api/v1/feedback
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	result, err := h.feedbackService.Feedback(r.Context(), sess)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}
