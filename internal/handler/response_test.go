package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Gopher0727/TaskRoom/internal/service"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("room r1: %w", service.ErrNotFound), http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{&service.TransactionAbortedError{Op: "delete task", Err: service.ErrConflict}, http.StatusConflict},
		{service.ErrParentMismatch, http.StatusBadRequest},
		{fmt.Errorf("%w: empty title", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrFileOwned, http.StatusBadRequest},
		{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{service.ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "disk on fire")
				assert.Len(t, c.Errors, 1)
			}
		})
	}
}

func TestCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	_, ok := currentUser(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Set(UserIDKey, "u1")
	userID, ok := currentUser(c)
	assert.True(t, ok)
	assert.Equal(t, "u1", userID)
}
