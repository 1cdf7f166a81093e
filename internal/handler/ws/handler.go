package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/internal/session"
)

// MessageType constants
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeFeedback = "feedback"
	TypeChunk    = "chunk"
	TypeDone     = "done"
	TypeError    = "error"
)

// Handler handles WebSocket messages.
type Handler struct {
	feedbackService *service.FeedbackService
	log             zerolog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(feedbackService *service.FeedbackService, log zerolog.Logger) *Handler {
	return &Handler{feedbackService: feedbackService, log: log}
}

// Response represents a WebSocket response.
type Response struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ChunkPayload carries one piece of streamed feedback.
type ChunkPayload struct {
	Text string `json:"text"`
}

// DonePayload ends a feedback stream.
type DonePayload struct {
	AttemptID string `json:"attempt_id"`
}

// ErrorPayload reports a failed request.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Handle processes one incoming message. Replies are passed to send, which
// may be called several times for streamed replies. A send error aborts the
// stream and is returned.
func (h *Handler) Handle(ctx context.Context, sess *session.Session, clientID, msgType string, payload json.RawMessage, send func([]byte) error) error {
	h.log.Debug().
		Str("client_id", clientID).
		Str("type", msgType).
		Msg("Handling WebSocket message")

	switch msgType {
	case TypePing:
		return h.reply(send, TypePong, map[string]string{"message": "pong"})

	case TypeFeedback:
		return h.handleFeedback(ctx, sess, send)

	default:
		return h.reply(send, TypeError, ErrorPayload{
			Code:    string(errors.ErrValidation),
			Message: "unknown message type: " + msgType,
		})
	}
}

func (h *Handler) handleFeedback(ctx context.Context, sess *session.Session, send func([]byte) error) error {
	var sendErr error
	attemptID, err := h.feedbackService.Stream(ctx, sess, func(chunk string) error {
		sendErr = h.reply(send, TypeChunk, ChunkPayload{Text: chunk})
		return sendErr
	})
	if sendErr != nil {
		return sendErr
	}
	if err != nil {
		return h.reply(send, TypeError, errorPayload(err))
	}
	return h.reply(send, TypeDone, DonePayload{AttemptID: attemptID})
}

func errorPayload(err error) ErrorPayload {
	appErr, ok := errors.As(err)
	if !ok {
		return ErrorPayload{Code: string(errors.ErrInternal), Message: "internal server error"}
	}
	return ErrorPayload{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Retryable: appErr.Retryable(),
	}
}

func (h *Handler) reply(send func([]byte) error, msgType string, payload interface{}) error {
	data, err := json.Marshal(Response{
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return send(data)
}
