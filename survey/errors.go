package survey

import "github.com/pkg/errors"

// Error kinds. Match them with errors.Is; the underlying cause stays reachable
// through errors.Unwrap.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNotFound        = errors.New("not found")
	ErrLoadFailure     = errors.New("load failure")
	ErrSaveFailure     = errors.New("save failure")
	ErrForkFailure     = errors.New("fork failure")
	ErrInvalidValue    = errors.New("invalid value")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.err }

// WithKind tags err with one of the kinds above. A nil err stays nil.
func WithKind(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}
