package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_EveryCodeHasAMessage(t *testing.T) {
	for code := range codeKinds {
		msg := Message(code)
		assert.NotEmpty(t, msg, code)
		assert.NotEqual(t, fallbackMessage, msg, code)
	}
	assert.Equal(t, len(codeKinds), len(codeMessages))
	assert.Equal(t, fallbackMessage, Message("SOMETHING_ELSE"))
}

func TestNewError(t *testing.T) {
	err := NewError(CodeRoleKeyInUse)

	assert.Equal(t, KindKeyInUse, err.Kind)
	assert.Equal(t, Message(CodeRoleKeyInUse), err.Message)
	assert.Equal(t, "ROLE_KEY_IN_USE", err.Error())
	assert.True(t, errors.Is(err, ErrKeyInUse))
	assert.True(t, errors.Is(err, NewError(CodeRoleKeyInUse)))
	assert.False(t, errors.Is(err, NewError(CodePermissionKeyInUse)))
	assert.False(t, errors.Is(err, ErrInUse))
}

func TestWrapError(t *testing.T) {
	cause := errors.New("duplicate key")
	err := wrapError(CodeEmailInUse, cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrKeyInUse)
	assert.Contains(t, err.Error(), "EMAIL_IN_USE")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeForbidden, CodeOf(NewError(CodeForbidden)))
	assert.Equal(t, CodeForbidden, CodeOf(fmt.Errorf("outer: %w", NewError(CodeForbidden))))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeCannotDeleteSelf, http.StatusForbidden},
		{CodeRoleNotFound, http.StatusNotFound},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeRoleScopeMismatch, http.StatusUnprocessableEntity},
		{CodeRoleKeyInUse, http.StatusConflict},
		{CodeCannotDeleteProtectedRole, http.StatusConflict},
		{CodeCannotDeactivateLastUser, http.StatusConflict},
		{CodePermissionInUse, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(NewError(tt.code)))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "last_admin_standing", KindLastAdminStanding.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "forbidden", ErrForbidden.Error())
}
