package observ

import (
	"strings"
	"testing"
	"time"
)

func TestSummaryIncludesStagesAndThroughput(t *testing.T) {
	tm := NewTimer()
	st := tm.Start("link")
	time.Sleep(2 * time.Millisecond)
	st.Done(3, "syntaxes")
	tm.Start("load themes").Done(0, "")

	out := tm.Summary()
	if !strings.Contains(out, "link") || !strings.Contains(out, "load themes") {
		t.Errorf("summary missing stages: %q", out)
	}
	if !strings.Contains(out, "3 syntaxes") || !strings.Contains(out, "syntaxes/s") {
		t.Errorf("summary missing item counts or throughput: %q", out)
	}
	if !strings.Contains(out, "total") {
		t.Errorf("summary missing total: %q", out)
	}
}

func TestDoneOnZeroStageIsNoop(t *testing.T) {
	var s Stage
	s.Done(1, "things") // must not panic
	tm := NewTimer()
	if got := tm.Summary(); !strings.Contains(got, "total") {
		t.Errorf("empty summary = %q", got)
	}
}
