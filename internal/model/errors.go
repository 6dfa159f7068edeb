package model

import (
	"errors"
	"net/http"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeNotAMember           Code = "not_a_member"
	CodeInsufficientPoints   Code = "insufficient_points"
	CodePurchaseLimitReached Code = "purchase_limit_reached"
	CodeItemNotFound         Code = "item_not_found"
	CodeQuestNotFound        Code = "quest_not_found"
	CodeQuestNotAvailable    Code = "quest_not_available"
	CodeDuplicateSubmission  Code = "duplicate_submission"
	CodeAlreadyReviewed      Code = "already_reviewed"
	CodeInvalidSchedule      Code = "invalid_schedule"
	CodeInvalidInviteCode    Code = "invalid_invite_code"
	CodePermissionDenied     Code = "permission_denied"
	CodeGroupNotFound        Code = "group_not_found"
	CodeSubmissionNotFound   Code = "submission_not_found"
	CodeAccountNotFound      Code = "account_not_found"
	CodeInvalidInput         Code = "invalid_input"
	CodeInvalidCredentials   Code = "invalid_credentials"
	CodeTransient            Code = "transient_failure"
)

// Error is a caller-facing failure. Two Errors match under errors.Is when
// their codes are equal, so a sentinel can be re-issued with a more
// specific message and still be recognized.
type Error struct {
	Code    Code
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying a different message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Status: e.Status}
}

var (
	ErrNotAMember           = &Error{CodeNotAMember, "account is not a member of this group", http.StatusForbidden}
	ErrInsufficientPoints   = &Error{CodeInsufficientPoints, "not enough points", http.StatusConflict}
	ErrPurchaseLimitReached = &Error{CodePurchaseLimitReached, "purchase limit reached for this item", http.StatusConflict}
	ErrItemNotFound         = &Error{CodeItemNotFound, "shop item not found", http.StatusNotFound}
	ErrQuestNotFound        = &Error{CodeQuestNotFound, "quest not found", http.StatusNotFound}
	ErrQuestNotAvailable    = &Error{CodeQuestNotAvailable, "quest is not currently open", http.StatusUnprocessableEntity}
	ErrDuplicateSubmission  = &Error{CodeDuplicateSubmission, "a submission for this quest is already pending or approved", http.StatusConflict}
	ErrAlreadyReviewed      = &Error{CodeAlreadyReviewed, "submission has already been reviewed", http.StatusConflict}
	ErrInvalidSchedule      = &Error{CodeInvalidSchedule, "end time must be after start time", http.StatusBadRequest}
	ErrInvalidInviteCode    = &Error{CodeInvalidInviteCode, "invite code not recognized", http.StatusNotFound}
	ErrPermissionDenied     = &Error{CodePermissionDenied, "permission denied", http.StatusForbidden}
	ErrGroupNotFound        = &Error{CodeGroupNotFound, "group not found", http.StatusNotFound}
	ErrSubmissionNotFound   = &Error{CodeSubmissionNotFound, "submission not found", http.StatusNotFound}
	ErrAccountNotFound      = &Error{CodeAccountNotFound, "account not found", http.StatusNotFound}
	ErrInvalidInput         = &Error{CodeInvalidInput, "invalid input", http.StatusBadRequest}
	ErrInvalidCredentials   = &Error{CodeInvalidCredentials, "invalid account id or password", http.StatusUnauthorized}

	// ErrTransient marks store failures (aborted or failed transactions).
	// Nothing was committed, so the whole operation may be retried.
	ErrTransient = &Error{CodeTransient, "temporary storage failure, try again", http.StatusServiceUnavailable}
)

// InvalidInput returns ErrInvalidInput with a specific message.
func InvalidInput(msg string) *Error {
	return ErrInvalidInput.WithMessage(msg)
}
