// Package batch runs per-position processing sequentially with per-item
// failure isolation: one position's failure never aborts the batch.
package batch

import (
	"errors"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/riscan"
)

// ErrNoWork reports a batch in which zero positions succeeded. It is a
// terminal state surfaced after the full batch has been attempted, never a
// mid-loop abort.
var ErrNoWork = errors.New("no positions processed successfully")

// Outcome is the tagged result of processing one position. Exactly one of
// Payload and Err is meaningful; Err holds the verbatim failure text.
type Outcome[T any] struct {
	Position string
	ScanName string
	Payload  T
	Err      string
}

// Failed reports whether this outcome is the failure variant.
func (o Outcome[T]) Failed() bool { return o.Err != "" }

// ProcessFunc computes the per-position result. Implementations are treated
// as black boxes; any error (or panic) is captured into a failure Outcome.
type ProcessFunc[T any] func(fset riscan.FileSet) (T, error)

// Run invokes fn once per file set, in input order, with no concurrency.
// It returns one Outcome per input, in the same order. A failing or
// panicking fn is recorded and the loop continues; Run itself never panics
// because of fn.
func Run[T any](sets []riscan.FileSet, fn ProcessFunc[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], 0, len(sets))
	for i, fset := range sets {
		monitoring.Logf("processing %s (%d/%d)", fset.Position, i+1, len(sets))

		payload, err := invoke(fn, fset)
		o := Outcome[T]{Position: fset.Position, ScanName: fset.ScanName}
		if err != nil {
			o.Err = err.Error()
			monitoring.Logf("error processing %s: %s", fset.Position, o.Err)
		} else {
			o.Payload = payload
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// invoke calls fn, converting a panic into an error so the batch loop stays
// an isolation boundary.
func invoke[T any](fn ProcessFunc[T], fset riscan.FileSet) (payload T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(fset)
}

// Tally summarises a finished batch.
type Tally struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Count tallies the outcomes. The returned error is ErrNoWork when nothing
// succeeded.
func Count[T any](outcomes []Outcome[T]) (Tally, error) {
	t := Tally{Attempted: len(outcomes)}
	for _, o := range outcomes {
		if o.Failed() {
			t.Failed++
		} else {
			t.Succeeded++
		}
	}
	if t.Succeeded == 0 {
		return t, ErrNoWork
	}
	return t, nil
}

// Successes returns the successful outcomes in batch order.
func Successes[T any](outcomes []Outcome[T]) []Outcome[T] {
	var ok []Outcome[T]
	for _, o := range outcomes {
		if !o.Failed() {
			ok = append(ok, o)
		}
	}
	return ok
}
