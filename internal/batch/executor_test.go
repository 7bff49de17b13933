package batch

import (
	"errors"
	"fmt"
	"log"
	"testing"

	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/riscan"
)

func muteLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
}

func testSets(n int) []riscan.FileSet {
	sets := make([]riscan.FileSet, n)
	for i := range sets {
		sets[i] = riscan.FileSet{
			Position: fmt.Sprintf("ScanPos%03d", i+1),
			ScanName: fmt.Sprintf("scan%03d", i+1),
		}
	}
	return sets
}

func TestRun_FailureIsolation(t *testing.T) {
	muteLogs(t)
	sets := testSets(6)

	// Positions 2 and 5 (1-indexed) fail.
	failing := map[string]bool{"ScanPos002": true, "ScanPos005": true}
	outcomes := Run(sets, func(fset riscan.FileSet) (int, error) {
		if failing[fset.Position] {
			return 0, fmt.Errorf("processing failed for %s", fset.Position)
		}
		return len(fset.Position), nil
	})

	if len(outcomes) != len(sets) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(sets))
	}
	for i, o := range outcomes {
		if o.Position != sets[i].Position {
			t.Errorf("outcome %d out of order: %s", i, o.Position)
		}
		wantFail := failing[o.Position]
		if o.Failed() != wantFail {
			t.Errorf("outcome %s: Failed() = %v, want %v", o.Position, o.Failed(), wantFail)
		}
	}

	// Error text is captured verbatim.
	if got, want := outcomes[1].Err, "processing failed for ScanPos002"; got != want {
		t.Errorf("Err = %q, want %q", got, want)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	muteLogs(t)
	sets := testSets(3)

	outcomes := Run(sets, func(fset riscan.FileSet) (string, error) {
		if fset.Position == "ScanPos002" {
			panic("index out of range in decoder")
		}
		return "ok", nil
	})

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if !outcomes[1].Failed() {
		t.Fatal("panicking position should produce a failure outcome")
	}
	if want := "panic: index out of range in decoder"; outcomes[1].Err != want {
		t.Errorf("Err = %q, want %q", outcomes[1].Err, want)
	}
	if outcomes[2].Failed() {
		t.Error("positions after a panic must still be processed")
	}
}

func TestCount(t *testing.T) {
	outcomes := []Outcome[int]{
		{Position: "ScanPos001", Payload: 1},
		{Position: "ScanPos002", Err: "boom"},
		{Position: "ScanPos003", Payload: 3},
	}

	tally, err := Count(outcomes)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if tally.Attempted != 3 || tally.Succeeded != 2 || tally.Failed != 1 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestCount_NoWork(t *testing.T) {
	outcomes := []Outcome[int]{
		{Position: "ScanPos001", Err: "a"},
		{Position: "ScanPos002", Err: "b"},
	}

	tally, err := Count(outcomes)
	if !errors.Is(err, ErrNoWork) {
		t.Fatalf("expected ErrNoWork, got %v", err)
	}
	if tally.Attempted != 2 || tally.Failed != 2 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestSuccesses_PreservesOrder(t *testing.T) {
	outcomes := []Outcome[int]{
		{Position: "ScanPos001", Payload: 1},
		{Position: "ScanPos002", Err: "x"},
		{Position: "ScanPos003", Payload: 3},
	}

	ok := Successes(outcomes)
	if len(ok) != 2 || ok[0].Position != "ScanPos001" || ok[1].Position != "ScanPos003" {
		t.Errorf("Successes = %+v", ok)
	}
}
