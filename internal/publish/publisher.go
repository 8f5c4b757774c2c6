package publish

import (
	"context"
	"errors"
)

// Publisher posts text and returns the external id of the created post.
// A non-empty id together with an error means the post is partly live.
type Publisher interface {
	Publish(ctx context.Context, text string) (string, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, text string) (string, error)

func (f PublisherFunc) Publish(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

var ErrEmptyText = errors.New("publish: empty text")

// permanentError is never retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
