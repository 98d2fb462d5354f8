package rbac

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine error
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalid
	KindKeyInUse
	KindProtectedEntity
	KindLastAdminStanding
	KindSelfProtection
	KindInUse
	KindScopeMismatch
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindKeyInUse:
		return "key_in_use"
	case KindProtectedEntity:
		return "protected_entity"
	case KindLastAdminStanding:
		return "last_admin_standing"
	case KindSelfProtection:
		return "self_protection"
	case KindInUse:
		return "in_use"
	case KindScopeMismatch:
		return "scope_mismatch"
	default:
		return "unknown"
	}
}

// Code is the stable machine-readable error code returned to callers
type Code string

const (
	CodeUnauthenticated              Code = "UNAUTHENTICATED"
	CodeForbidden                    Code = "FORBIDDEN"
	CodeNotFound                     Code = "NOT_FOUND"
	CodeRoleNotFound                 Code = "ROLE_NOT_FOUND"
	CodePermissionNotFound           Code = "PERMISSION_NOT_FOUND"
	CodeUserNotFound                 Code = "USER_NOT_FOUND"
	CodeMembershipNotFound           Code = "MEMBERSHIP_NOT_FOUND"
	CodeInvalidInput                 Code = "INVALID_INPUT"
	CodeRoleKeyInUse                 Code = "ROLE_KEY_IN_USE"
	CodePermissionKeyInUse           Code = "PERMISSION_KEY_IN_USE"
	CodeEmailInUse                   Code = "EMAIL_IN_USE"
	CodeMembershipExists             Code = "MEMBERSHIP_EXISTS"
	CodeCannotCreateProtectedRole    Code = "CANNOT_CREATE_PROTECTED_ROLE"
	CodeCannotChangeProtectedKey     Code = "CANNOT_CHANGE_PROTECTED_KEY"
	CodeCannotDeleteProtectedRole    Code = "CANNOT_DELETE_PROTECTED_ROLE"
	CodeKeyReservedForSystem         Code = "KEY_RESERVED_FOR_SYSTEM"
	CodeCannotDeleteSystemPermission Code = "CANNOT_DELETE_SYSTEM_PERMISSION"
	CodeProtectedRoleAlreadyAssigned Code = "PROTECTED_ROLE_ALREADY_ASSIGNED"
	CodeCannotDeleteLastUser         Code = "CANNOT_DELETE_LAST_USER"
	CodeCannotDeactivateLastUser     Code = "CANNOT_DEACTIVATE_LAST_USER"
	CodeCannotReassignLastUser       Code = "CANNOT_REASSIGN_LAST_USER"
	CodeCannotDeleteSelf             Code = "CANNOT_DELETE_SELF"
	CodeCannotDeactivateSelf         Code = "CANNOT_DEACTIVATE_SELF"
	CodePermissionInUse              Code = "PERMISSION_IN_USE"
	CodeRoleScopeMismatch            Code = "ROLE_SCOPE_MISMATCH"
	CodeRoleTenantMismatch           Code = "ROLE_TENANT_MISMATCH"
	CodeTenantMismatch               Code = "TENANT_MISMATCH"
	CodeScopeMismatch                Code = "SCOPE_MISMATCH"
)

var codeKinds = map[Code]Kind{
	CodeUnauthenticated:              KindUnauthenticated,
	CodeForbidden:                    KindForbidden,
	CodeNotFound:                     KindNotFound,
	CodeRoleNotFound:                 KindNotFound,
	CodePermissionNotFound:           KindNotFound,
	CodeUserNotFound:                 KindNotFound,
	CodeMembershipNotFound:           KindNotFound,
	CodeInvalidInput:                 KindInvalid,
	CodeRoleKeyInUse:                 KindKeyInUse,
	CodePermissionKeyInUse:           KindKeyInUse,
	CodeEmailInUse:                   KindKeyInUse,
	CodeMembershipExists:             KindKeyInUse,
	CodeCannotCreateProtectedRole:    KindProtectedEntity,
	CodeCannotChangeProtectedKey:     KindProtectedEntity,
	CodeCannotDeleteProtectedRole:    KindProtectedEntity,
	CodeKeyReservedForSystem:         KindProtectedEntity,
	CodeCannotDeleteSystemPermission: KindProtectedEntity,
	CodeProtectedRoleAlreadyAssigned: KindProtectedEntity,
	CodeCannotDeleteLastUser:         KindLastAdminStanding,
	CodeCannotDeactivateLastUser:     KindLastAdminStanding,
	CodeCannotReassignLastUser:       KindLastAdminStanding,
	CodeCannotDeleteSelf:             KindSelfProtection,
	CodeCannotDeactivateSelf:         KindSelfProtection,
	CodePermissionInUse:              KindInUse,
	CodeRoleScopeMismatch:            KindScopeMismatch,
	CodeRoleTenantMismatch:           KindScopeMismatch,
	CodeTenantMismatch:               KindScopeMismatch,
	CodeScopeMismatch:                KindScopeMismatch,
}

var codeMessages = map[Code]string{
	CodeUnauthenticated:              "You must be signed in to perform this action.",
	CodeForbidden:                    "You do not have permission to perform this action.",
	CodeNotFound:                     "The requested record does not exist.",
	CodeRoleNotFound:                 "The selected role does not exist.",
	CodePermissionNotFound:           "One or more selected permissions do not exist.",
	CodeUserNotFound:                 "The selected user does not exist.",
	CodeMembershipNotFound:           "The user is not a member of this tenant.",
	CodeInvalidInput:                 "The submitted data is invalid.",
	CodeRoleKeyInUse:                 "A role with this key already exists.",
	CodePermissionKeyInUse:           "A permission with this key already exists.",
	CodeEmailInUse:                   "This email address is already in use.",
	CodeMembershipExists:             "The user is already a member of this tenant.",
	CodeCannotCreateProtectedRole:    "This role key is reserved for a built-in role.",
	CodeCannotChangeProtectedKey:     "The key of a built-in role cannot be changed.",
	CodeCannotDeleteProtectedRole:    "Built-in roles cannot be deleted.",
	CodeKeyReservedForSystem:         "This permission key is reserved for the system.",
	CodeCannotDeleteSystemPermission: "System permissions cannot be deleted.",
	CodeProtectedRoleAlreadyAssigned: "This role is already assigned to another active user.",
	CodeCannotDeleteLastUser:         "The last administrator cannot be deleted.",
	CodeCannotDeactivateLastUser:     "The last administrator cannot be deactivated.",
	CodeCannotReassignLastUser:       "The last administrator cannot be moved to another role.",
	CodeCannotDeleteSelf:             "You cannot delete your own account.",
	CodeCannotDeactivateSelf:         "You cannot deactivate your own account.",
	CodePermissionInUse:              "This permission is still assigned to one or more roles.",
	CodeRoleScopeMismatch:            "The role does not belong to the current scope.",
	CodeRoleTenantMismatch:           "The role belongs to a different tenant.",
	CodeTenantMismatch:               "The tenant does not match the current scope.",
	CodeScopeMismatch:                "This action is only available in the central scope.",
}

const fallbackMessage = "Something went wrong. Please try again."

// Message returns the human-readable message for a code
func Message(code Code) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return fallbackMessage
}

// KindOf returns the kind registered for a code
func KindOf(code Code) Kind {
	return codeKinds[code]
}

// Error is a typed engine error
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Code == "" {
		return e.Kind.String()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code, or on kind when the target carries no code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is
var (
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalid           = &Error{Kind: KindInvalid}
	ErrKeyInUse          = &Error{Kind: KindKeyInUse}
	ErrProtectedEntity   = &Error{Kind: KindProtectedEntity}
	ErrLastAdminStanding = &Error{Kind: KindLastAdminStanding}
	ErrSelfProtection    = &Error{Kind: KindSelfProtection}
	ErrInUse             = &Error{Kind: KindInUse}
	ErrScopeMismatch     = &Error{Kind: KindScopeMismatch}
)

// NewError builds an error for a code
func NewError(code Code) *Error {
	return &Error{Kind: KindOf(code), Code: code, Message: Message(code)}
}

func wrapError(code Code, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// CodeOf extracts the code of an engine error, or "" for anything else
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error to the response status used by the handlers
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindSelfProtection:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindScopeMismatch:
		return http.StatusUnprocessableEntity
	case KindKeyInUse, KindProtectedEntity, KindLastAdminStanding, KindInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
