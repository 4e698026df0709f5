package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrDuplicateUserPosition, http.StatusConflict, "duplicate_user_position"},
		{service.ErrInvalidSponsor, http.StatusBadRequest, "invalid_sponsor"},
		{fmt.Errorf("bind: %w", service.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{service.ErrNotFound, http.StatusNotFound, "not_found"},
		{service.ErrQueueContention, http.StatusServiceUnavailable, "queue_contention"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("connection refused"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			handleServiceError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["error"])
			if tc.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
		})
	}
}
