package lifecycle

import (
	"testing"
	"time"

	"github.com/xtxerr/depot/internal/errors"
)

func TestParseStatus(t *testing.T) {
	for st := StatusDefault; st <= StatusError; st++ {
		got, err := ParseStatus(st.String())
		if err != nil {
			t.Errorf("ParseStatus(%q): %v", st.String(), err)
			continue
		}
		if got != st {
			t.Errorf("ParseStatus(%q) = %v, want %v", st.String(), got, st)
		}
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestIsTerminal(t *testing.T) {
	if !StatusDelete.IsTerminal() {
		t.Error("delete must be terminal")
	}
	for st := StatusDefault; st <= StatusError; st++ {
		if st != StatusDelete && st.IsTerminal() {
			t.Errorf("%s must not be terminal", st)
		}
	}
}

func TestForwardEdges(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusDefault, StatusConvert},
		{StatusConvert, StatusAnalyzeGateway},
		{StatusConvert, StatusAnalyzeServer},
		{StatusAnalyzeGateway, StatusTransferGateway},
		{StatusAnalyzeGateway, StatusTransferServer},
		{StatusAnalyzeServer, StatusTransferGateway},
		{StatusAnalyzeServer, StatusTransferServer},
		{StatusTransferGateway, StatusBackup},
		{StatusTransferServer, StatusBackup},
		{StatusBackup, StatusDelete},
	}
	for _, e := range legal {
		if err := ValidateTransition(e.from, e.to); err != nil {
			t.Errorf("%s -> %s must be legal: %v", e.from, e.to, err)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusDefault, StatusAnalyzeGateway}, // skipping convert
		{StatusDefault, StatusDelete},
		{StatusConvert, StatusDefault}, // backwards
		{StatusConvert, StatusBackup},
		{StatusAnalyzeGateway, StatusBackup},
		{StatusTransferGateway, StatusDelete},
		{StatusBackup, StatusConvert},
		{StatusDelete, StatusDefault}, // out of terminal
		{StatusDelete, StatusError},
		{StatusConvert, StatusConvert}, // self edge
	}
	for _, e := range illegal {
		if err := ValidateTransition(e.from, e.to); !errors.Is(err, errors.ErrInvalidTransition) {
			t.Errorf("%s -> %s must be illegal, got %v", e.from, e.to, err)
		}
	}
}

func TestErrorEdges(t *testing.T) {
	// Every non-terminal working status may fail into Error.
	for _, st := range Stages() {
		if !CanAdvance(st, StatusError) {
			t.Errorf("%s -> error must be legal", st)
		}
	}
	if CanAdvance(StatusError, StatusError) {
		t.Error("error -> error must be illegal")
	}

	// Error leaves to any non-terminal retry target, never to delete.
	for _, st := range Stages() {
		if !CanAdvance(StatusError, st) {
			t.Errorf("error -> %s must be legal for retry", st)
		}
	}
	if CanAdvance(StatusError, StatusDelete) {
		t.Error("error -> delete must be illegal")
	}
}

func TestRetryTarget(t *testing.T) {
	cases := []struct {
		recorded Status
		known    bool
		want     Status
	}{
		{StatusConvert, true, StatusConvert},
		{StatusBackup, true, StatusBackup},
		{StatusConvert, false, StatusDefault},
		{StatusDelete, true, StatusDefault},
		{StatusError, true, StatusDefault},
	}
	for _, c := range cases {
		if got := RetryTarget(c.recorded, c.known); got != c.want {
			t.Errorf("RetryTarget(%s, %v) = %s, want %s", c.recorded, c.known, got, c.want)
		}
	}
}

func TestNext(t *testing.T) {
	if got := Next(StatusDelete); len(got) != 0 {
		t.Errorf("delete has no successors, got %v", got)
	}
	if got := Next(StatusConvert); len(got) != 2 {
		t.Errorf("convert has two successors, got %v", got)
	}
}

func TestStageStats(t *testing.T) {
	s := NewStageStats()

	if _, ok := s.LatencyQuantile(StatusConvert, 0.99); ok {
		t.Error("fresh stats must report no latency")
	}

	for i := 0; i < 100; i++ {
		s.RecordSuccess(StatusConvert, time.Duration(i+1)*time.Millisecond)
	}
	s.RecordFailure(StatusConvert)

	if got := s.Completed(StatusConvert); got != 100 {
		t.Errorf("Completed = %d, want 100", got)
	}
	if got := s.Failed(StatusConvert); got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
	if got := s.Completed(StatusBackup); got != 0 {
		t.Errorf("untouched stage Completed = %d, want 0", got)
	}

	p99, ok := s.LatencyQuantile(StatusConvert, 0.99)
	if !ok {
		t.Fatal("expected a latency quantile")
	}
	// 1% relative accuracy around the true p99 of 99ms.
	if p99 < 90 || p99 > 110 {
		t.Errorf("p99 = %v ms, want about 99", p99)
	}
}
