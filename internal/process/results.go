package process

import (
	"fmt"
	"io"
	"sync"
)

// Failure is a per-item error: the identity of the failing element and its cause.
type Failure struct {
	Element string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Element, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Results accumulates the outcome of a batch. It is safe for concurrent use
// so that a caller may inspect it while the process runs.
type Results[T any] struct {
	mu      sync.Mutex
	success []T
	skipped []T
	errors  []Failure
}

func NewResults[T any]() *Results[T] {
	return &Results[T]{}
}

func (r *Results[T]) AddSuccess(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, item)
}

func (r *Results[T]) AddSkipped(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, item)
}

func (r *Results[T]) AddError(element string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, Failure{Element: element, Err: err})
}

func (r *Results[T]) Success() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.success...)
}

func (r *Results[T]) Skipped() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.skipped...)
}

func (r *Results[T]) Errors() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.errors...)
}

// ErrorCount is the number of recorded failures.
func (r *Results[T]) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// Merge appends every partition of other to r.
func (r *Results[T]) Merge(other *Results[T]) {
	if other == nil || other == r {
		return
	}
	success, skipped, errs := other.Success(), other.Skipped(), other.Errors()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, success...)
	r.skipped = append(r.skipped, skipped...)
	r.errors = append(r.errors, errs...)
}

// Render writes a human readable summary. describe names one item.
func (r *Results[T]) Render(w io.Writer, title string, describe func(T) string) error {
	success, skipped, errs := r.Success(), r.Skipped(), r.Errors()

	if _, err := fmt.Fprintf(w, "%s: %d succeeded, %d skipped, %d failed\n",
		title, len(success), len(skipped), len(errs)); err != nil {
		return err
	}
	for _, item := range success {
		if _, err := fmt.Fprintf(w, "  + %s\n", describe(item)); err != nil {
			return err
		}
	}
	for _, item := range skipped {
		if _, err := fmt.Fprintf(w, "  ~ %s\n", describe(item)); err != nil {
			return err
		}
	}
	for _, f := range errs {
		if _, err := fmt.Fprintf(w, "  ! %s: %v\n", f.Element, f.Err); err != nil {
			return err
		}
	}
	return nil
}
