package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a rename job failed.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindTemplate    Kind = "template"
	KindStorage     Kind = "storage"
	KindPersistence Kind = "persistence"
	KindInternal    Kind = "internal"
)

// JobError carries the kind of a failure through the rename pipeline so the
// worker boundary can report it without inspecting the cause.
type JobError struct {
	Kind Kind
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func wrapKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var je *JobError
	if errors.As(err, &je) {
		return err
	}
	return &JobError{Kind: kind, Err: errors.WithStack(err)}
}

// Transport marks a download or upload failure (network, rate limit, size).
func Transport(err error) error { return wrapKind(KindTransport, err) }

// Template marks a malformed rename template.
func Template(err error) error { return wrapKind(KindTemplate, err) }

// Storage marks a scratch storage failure (disk full, permissions).
func Storage(err error) error { return wrapKind(KindStorage, err) }

// Persistence marks a settings or stats store failure.
func Persistence(err error) error { return wrapKind(KindPersistence, err) }

// KindOf returns the kind of the first JobError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return KindInternal
}

// UserMessage is the text sent back to the chat when a job fails.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindTransport:
		if errors.Is(err, ErrFileTooLarge) {
			return "❌ This file is too large for me to process."
		}
		if errors.Is(err, ErrRateLimited) {
			return "⏳ The messaging platform is rate limiting me. Please send the file again in a minute."
		}
		return "❌ I couldn't transfer your file. Please try sending it again."
	case KindTemplate:
		return fmt.Sprintf("❌ Your rename template is invalid: %s\nFix it with /autorename.", Cause(err).Error())
	case KindStorage:
		return "❌ I ran out of working space while processing your file. Please try again later."
	case KindPersistence:
		return "❌ I couldn't load your settings. Please try again later."
	default:
		return "❌ Something went wrong while renaming your file."
	}
}

// Cause returns the innermost error below any JobError and stack wrappers.
func Cause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrRateLimited  = errors.New("rate limited")
)
