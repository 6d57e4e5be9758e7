package rescache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFetchFailed matches every fetch failure inside a LoadError.
var ErrFetchFailed = errors.New("rescache: fetch failed")

// LoadError lists the resources of a Load that were not replayed.
// The rest of the batch still loaded.
type LoadError struct {
	Failed []string
	Errs   []error
}

func (e *LoadError) add(url string, err error) {
	e.Failed = append(e.Failed, url)
	e.Errs = append(e.Errs, err)
}

func (e *LoadError) Error() string {
	switch len(e.Failed) {
	case 0:
		return "rescache: load failed"
	case 1:
		return fmt.Sprintf("rescache: load %q: %v", e.Failed[0], e.Errs[0])
	default:
		return fmt.Sprintf("rescache: %d resources failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
	}
}

func (e *LoadError) Unwrap() []error { return e.Errs }
