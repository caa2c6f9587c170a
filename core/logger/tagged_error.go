package logger

import "errors"

// TaggedError carries the logger tag and the process exit code that should be
// used when the error reaches the top-most boundary.
type TaggedError struct {
	tag    string
	err    error
	code   int
	logged bool
}

func (e *TaggedError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *TaggedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Tag returns the associated logger tag.
func (e *TaggedError) Tag() string {
	if e == nil {
		return ""
	}
	return e.tag
}

// WithTag wraps err with a logger tag. If err is nil, nil is returned.
func WithTag(tag string, err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{tag: tag, err: err}
}

// WithExitCode wraps err with a process exit code. If err is nil, nil is
// returned. An existing tag and logged flag are kept.
func WithExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	te := &TaggedError{err: err, code: code}
	var inner *TaggedError
	if errors.As(err, &inner) && inner != nil {
		te.tag = inner.tag
		te.logged = inner.logged
	}
	return te
}

// ErrorTag extracts a logger tag from an error chain.
func ErrorTag(err error) string {
	var tagged *TaggedError
	if errors.As(err, &tagged) && tagged != nil {
		return tagged.Tag()
	}
	return ""
}

// ExitCode returns the first exit code found in the error chain. A nil error
// maps to 0 and an error without an explicit code maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for err != nil {
		var tagged *TaggedError
		if !errors.As(err, &tagged) || tagged == nil {
			break
		}
		if tagged.code != 0 {
			return tagged.code
		}
		err = tagged.err
	}
	return 1
}

// Logged reports whether the error was already written to the log by the
// logger that created it.
func Logged(err error) bool {
	var tagged *TaggedError
	for errors.As(err, &tagged) && tagged != nil {
		if tagged.logged {
			return true
		}
		err = tagged.err
	}
	return false
}
