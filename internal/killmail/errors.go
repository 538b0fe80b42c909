package killmail

import (
	"errors"
	"fmt"
)

// Error represents a failure of one pipeline stage for one event.
//
// Kinds:
//   - Transient: network error, timeout or 5xx after retries ran out
//   - Permanent: not found, malformed payload, validation failure
//   - Duplicate: header or fingerprint already present (callers treat as success)
//   - Integrity: constraint violation other than the expected duplicates
//   - Connectivity: source or control channel trouble, never fatal to the core
//
// Permanent and Transient failures never mark the fingerprint as seen, so the
// event stays eligible for a later delivery.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Stage names the pipeline stage that failed.
	Stage Stage

	// KillmailID identifies the affected event (0 when unknown).
	KillmailID int64

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Kind categorizes pipeline errors.
type Kind string

const (
	KindTransient    Kind = "TRANSIENT_FETCH"
	KindPermanent    Kind = "PERMANENT_CONTENT"
	KindDuplicate    Kind = "DUPLICATE_WRITE"
	KindIntegrity    Kind = "INTEGRITY"
	KindConnectivity Kind = "CONNECTIVITY"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageSource    Stage = "source"
	StageDedup     Stage = "dedup"
	StageEnrich    Stage = "enrich"
	StageNormalize Stage = "normalize"
	StagePersist   Stage = "persist"
	StageControl   Stage = "control"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.KillmailID != 0 {
		return fmt.Sprintf("%s: %s (stage=%s, killmail=%d)", e.Kind, msg, e.Stage, e.KillmailID)
	}
	return fmt.Sprintf("%s: %s (stage=%s)", e.Kind, msg, e.Stage)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient creates an Error of kind KindTransient.
func NewTransient(stage Stage, killmailID int64, message string, err error) *Error {
	return &Error{Kind: KindTransient, Stage: stage, KillmailID: killmailID, Message: message, Err: err}
}

// NewPermanent creates an Error of kind KindPermanent.
func NewPermanent(stage Stage, killmailID int64, message string, err error) *Error {
	return &Error{Kind: KindPermanent, Stage: stage, KillmailID: killmailID, Message: message, Err: err}
}

// NewIntegrity creates an Error of kind KindIntegrity.
func NewIntegrity(killmailID int64, message string, err error) *Error {
	return &Error{Kind: KindIntegrity, Stage: StagePersist, KillmailID: killmailID, Message: message, Err: err}
}

// NewConnectivity creates an Error of kind KindConnectivity.
func NewConnectivity(stage Stage, message string, err error) *Error {
	return &Error{Kind: KindConnectivity, Stage: stage, Message: message, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the Stage of err, or "" if err is not an *Error.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// IsTransient returns true if err is a retryable fetch failure.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsPermanent returns true if err must not be retried.
func IsPermanent(err error) bool {
	return KindOf(err) == KindPermanent
}

// IsDuplicate returns true if err reports an already-present write.
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicate
}

// IsIntegrity returns true if err is an unexpected constraint violation.
func IsIntegrity(err error) bool {
	return KindOf(err) == KindIntegrity
}

// IsConnectivity returns true if err is a source or control channel failure.
func IsConnectivity(err error) bool {
	return KindOf(err) == KindConnectivity
}

// ErrNotFound is returned by store reads when a killmail does not exist.
var ErrNotFound = errors.New("killmail not found")
