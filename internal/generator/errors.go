package generator

import (
	"encoding/json"
	"errors"
)

// Kind classifies generation failures and control outcomes.
type Kind string

// Failure kinds.
const (
	KindBusy               Kind = "busy"
	KindInvalidDescription Kind = "invalid-description"
	KindDirectoryInvalid   Kind = "directory-invalid"
	KindSynthesisFailed    Kind = "synthesis-failed"
	KindBadMetadataFormat  Kind = "bad-metadata-format"
	KindNameCollision      Kind = "name-collision"
	KindPendingExists      Kind = "pending-exists"
	KindReviewExhausted    Kind = "review-exhausted"
	KindUnsafeCode         Kind = "unsafe-code"
	KindMaterializeFailed  Kind = "materialize-failed"
	KindInstallFailed      Kind = "install-failed"
)

// Control kinds. These are reported in Result, never as errors.
const (
	KindPendingConfirmation Kind = "pending-confirmation"
	KindNoPending           Kind = "no-pending"
	KindUserCancelled       Kind = "user-cancelled"
)

// Error is a classified generation failure.
type Error struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON renders the kind and detail.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   Kind   `json:"kind"`
		Detail string `json:"detail,omitempty"`
	}{e.Kind, e.Detail})
}

// Is matches a bare sentinel of the same kind, so errors.Is(err, ErrBusy)
// works for any busy error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrBusy               = &Error{Kind: KindBusy}
	ErrInvalidDescription = &Error{Kind: KindInvalidDescription}
	ErrDirectoryInvalid   = &Error{Kind: KindDirectoryInvalid}
	ErrSynthesisFailed    = &Error{Kind: KindSynthesisFailed}
	ErrBadMetadataFormat  = &Error{Kind: KindBadMetadataFormat}
	ErrNameCollision      = &Error{Kind: KindNameCollision}
	ErrPendingExists      = &Error{Kind: KindPendingExists}
	ErrReviewExhausted    = &Error{Kind: KindReviewExhausted}
	ErrUnsafeCode         = &Error{Kind: KindUnsafeCode}
	ErrMaterializeFailed  = &Error{Kind: KindMaterializeFailed}
	ErrInstallFailed      = &Error{Kind: KindInstallFailed}
)

// KindOf returns the kind of err, or "" if err is not a generation error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
