package geocode

import "errors"

var (
	ErrInvalidQuery     = errors.New("invalid path query")
	ErrNoStartTable     = errors.New("no table contains the starting column")
	ErrNoEndTable       = errors.New("no table contains the ending column")
	ErrNoConnectingPath = errors.New("no connecting path between start and end tables")

	// ErrNoLocalAuthorityColumn and ErrLocalAuthorityNotFound are recovered
	// by returning the unfiltered table; they only appear as Warning kinds.
	ErrNoLocalAuthorityColumn = errors.New("no recognisable local authority column")
	ErrLocalAuthorityNotFound = errors.New("no rows for the requested local authorities")
)

// Warning records a recovered condition that widened a result.
type Warning struct {
	Kind    error  `json:"-"`
	Message string `json:"message"`
}

func (w Warning) Error() string { return w.Message }

// Unwrap lets errors.Is match the warning kind.
func (w Warning) Unwrap() error { return w.Kind }
