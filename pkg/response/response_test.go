package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/phonoecho/internal/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONWithMeta(rec, http.StatusOK, []string{"a"}, &Meta{Total: 1})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Meta.Total)
	assert.Nil(t, resp.Error)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errors.Validation("bad index"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", errors.NotFound("lesson 3"), http.StatusNotFound, "NOT_FOUND"},
		{"in flight", errors.New(errors.ErrAttemptInFlight, "busy"), http.StatusConflict, "ATTEMPT_IN_FLIGHT"},
		{"assessment timeout", errors.New(errors.ErrAssessmentTimeout, "slow"), http.StatusGatewayTimeout, "ASSESSMENT_TIMEOUT"},
		{"plain error", stderrors.New("secret detail"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "secret detail")
		})
	}
}

func TestErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := errors.New(errors.ErrAssessmentService, "rate limited").
		WithDetails(map[string]interface{}{"retry_after_seconds": 3.0})
	Error(rec, err.HTTPStatus(), err)

	resp := decode(t, rec)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 3.0, resp.Error.Details["retry_after_seconds"])
}
