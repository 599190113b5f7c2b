package retry

import (
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int, coolDown time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: max, CoolDown: coolDown, Now: clk.now})
	return cb, clk
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.Record(syscall.EMFILE)
	cb.Record(syscall.EMFILE)
	if cb.CurrentState() != StateClosed || !cb.Allow() {
		t.Fatalf("expected closed after 2 failures, got %s", cb.CurrentState())
	}

	cb.Record(syscall.EMFILE)
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.CurrentState())
	}
	if cb.Allow() {
		t.Error("open circuit allowed a call")
	}
	if cb.Remaining() != time.Second {
		t.Errorf("Remaining = %v, want 1s", cb.Remaining())
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)
	cb.Record(syscall.EMFILE)
	cb.Record(nil)
	cb.Record(syscall.EMFILE)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.CurrentState())
	}
	if cb.Failures() != 1 {
		t.Errorf("expected 1 failure, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"probe succeeds", nil, StateClosed},
		{"probe fails", syscall.ENFILE, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clk := newTestBreaker(1, 500*time.Millisecond)
			cb.Record(syscall.EMFILE)
			if cb.Allow() {
				t.Fatal("allowed right after tripping")
			}

			clk.advance(499 * time.Millisecond)
			if cb.Allow() {
				t.Fatal("allowed before the cool-down passed")
			}

			clk.advance(time.Millisecond)
			if !cb.Allow() {
				t.Fatal("refused after the cool-down")
			}
			if cb.CurrentState() != StateHalfOpen {
				t.Fatalf("expected half-open, got %s", cb.CurrentState())
			}

			cb.Record(tt.probe)
			if cb.CurrentState() != tt.want {
				t.Errorf("after probe: got %s, want %s", cb.CurrentState(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	boom := errors.New("boom")

	if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err == nil || !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("expected circuit open error, got %v", err)
	}
	if called {
		t.Error("fn ran while the circuit was open")
	}
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	var seen []string
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		CoolDown:    time.Second,
		Now:         clk.now,
		OnStateChange: func(from, to State) {
			seen = append(seen, from.String()+"->"+to.String())
		},
	})

	cb.Record(syscall.EMFILE)
	clk.advance(time.Second)
	cb.Allow()
	cb.Record(nil)
	cb.Reset()

	want := "closed->open,open->half-open,half-open->closed"
	if got := strings.Join(seen, ","); got != want {
		t.Errorf("transitions = %s, want %s", got, want)
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	for i := 0; i < 4; i++ {
		cb.Record(syscall.EMFILE)
	}
	if cb.CurrentState() != StateClosed {
		t.Fatalf("expected closed after 4 failures, got %s", cb.CurrentState())
	}
	cb.Record(syscall.EMFILE)
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after 5 failures, got %s", cb.CurrentState())
	}
	if State(9).String() != "unknown" {
		t.Errorf("State(9) = %s", State(9))
	}
}
