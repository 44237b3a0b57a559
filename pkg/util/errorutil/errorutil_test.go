package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &DomainError{Code: "X", Message: "boom"}
		assert.Equal(t, "boom", err.Error())
	})

	t.Run("Error includes wrapped error", func(t *testing.T) {
		wrapped := errors.New("root cause")
		err := &DomainError{Code: "X", Message: "boom", Err: wrapped}
		assert.Contains(t, err.Error(), "boom")
		assert.Contains(t, err.Error(), "root cause")
		assert.Equal(t, wrapped, errors.Unwrap(err))
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", NewValidationError("bad", nil), CodeValidation, http.StatusBadRequest},
		{"not found", NewNotFound("ticket", nil), CodeNotFound, http.StatusNotFound},
		{"unauthorized", NewUnauthorized("no"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", NewForbidden("no"), CodeForbidden, http.StatusForbidden},
		{"conflict", NewConflict("dup", nil), CodeConflict, http.StatusConflict},
		{"expired", NewExpired(nil), CodeExpired, http.StatusGone},
		{"already accepted", NewAlreadyAccepted(nil), CodeAlreadyAccepted, http.StatusConflict},
		{"identity conflict", NewIdentityConflict("taken", nil), CodeIdentityConflict, http.StatusConflict},
		{"transient", NewTransientStore(errors.New("down")), CodeTransientStore, http.StatusServiceUnavailable},
		{"internal", NewInternalError(errors.New("x")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			require.NotNil(t, de)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
			assert.True(t, IsCode(tt.err, tt.code))
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	de := ToDomainError(NewNotFound("ticket", map[string]any{"ticket_id": "t-1"}))
	assert.Equal(t, "ticket not found", de.Message)
	assert.Equal(t, "t-1", de.Details["ticket_id"])
}

func TestToDomainError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
		assert.NoError(t, MapError(nil))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		de := ToDomainError(fmt.Errorf("load: %w", pgx.ErrNoRows))
		assert.Equal(t, CodeNotFound, de.Code)
	})

	t.Run("deadline maps to transient", func(t *testing.T) {
		de := ToDomainError(fmt.Errorf("query: %w", context.DeadlineExceeded))
		assert.Equal(t, CodeTransientStore, de.Code)
	})

	t.Run("unknown maps to internal", func(t *testing.T) {
		de := ToDomainError(errors.New("mystery"))
		assert.Equal(t, CodeInternal, de.Code)
	})

	t.Run("wrapped domain error is preserved", func(t *testing.T) {
		de := ToDomainError(fmt.Errorf("ctx: %w", NewExpired(nil)))
		assert.Equal(t, CodeExpired, de.Code)
	})
}

func TestMapStoreError(t *testing.T) {
	err := MapStoreError(pgx.ErrNoRows, "invitation", map[string]any{"token": "abc"})
	de := ToDomainError(err)
	assert.Equal(t, "invitation not found", de.Message)
	assert.Equal(t, "abc", de.Details["token"])
	assert.NoError(t, MapStoreError(nil, "x", nil))
	assert.False(t, IsCode(errors.New("plain"), CodeNotFound))
}
