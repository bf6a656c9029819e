package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("register: %w", NewPersistence("save failed", NewConflict("User already exists", nil)))

	assert.ErrorIs(t, err, Persistence)
	assert.ErrorIs(t, err, Conflict)
	assert.NotErrorIs(t, err, Upload)
	assert.Equal(t, Persistence, KindOf(err))
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewValidation("bad"), http.StatusBadRequest},
		{NewUnauthorized("no"), http.StatusUnauthorized},
		{NewForbidden("no"), http.StatusForbidden},
		{NewNotFound("gone"), http.StatusNotFound},
		{NewConflict("dup", nil), http.StatusConflict},
		{NewUpload("x", nil), http.StatusBadGateway},
		{NewUploadTimeout("x", nil), http.StatusBadGateway},
		{NewDispatch("x", nil), http.StatusBadGateway},
		{NewPersistence("x", errors.New("db")), http.StatusInternalServerError},
		{NewPersistence("x", NewConflict("dup", nil)), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), tc.err.Error())
	}
}

func TestToResponse(t *testing.T) {
	err := NewValidation("Invalid upload", FieldError{Field: "avatar", Message: "unsupported"})

	resp := ToResponse(err, false)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, Validation, resp.Kind)
	assert.Equal(t, "avatar", resp.Errors[0].Field)
	assert.Empty(t, resp.Stack)

	assert.NotEmpty(t, ToResponse(err, true).Stack)

	foreign := ToResponse(errors.New("sql: connection refused"), false)
	assert.Equal(t, Internal, foreign.Kind)
	assert.Equal(t, "Something went wrong.", foreign.Message)
	assert.Equal(t, []FieldError{}, foreign.Errors)
}
