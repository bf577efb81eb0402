package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestTracker_Ticks(t *testing.T) {
	tr := Options{Quiet: true}.NewTracker("AVRO releases", 10)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Tick()
		}()
	}
	wg.Wait()

	if got := tr.Current(); got != 10 {
		t.Errorf("Current() = %d, want 10", got)
	}
	tr.FinishSuccess()
}

func TestTracker_FinishMessages(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Out: &buf}

	opts.NewTracker("pmd", 3).FinishSkipped("no PMD home")
	opts.NewSpinner("jira").FinishError(errors.New("status 503"))

	out := buf.String()
	if !strings.Contains(out, "pmd skipped (no PMD home)") {
		t.Errorf("missing skip message in %q", out)
	}
	if !strings.Contains(out, "jira error: status 503") {
		t.Errorf("missing error message in %q", out)
	}
}

func TestOptions_Quiet(t *testing.T) {
	var buf bytes.Buffer
	Options{Out: &buf, Quiet: true}.NewTracker("x", 1).FinishSkipped("quiet")
	if buf.Len() != 0 {
		t.Errorf("quiet tracker wrote %q", buf.String())
	}
}
