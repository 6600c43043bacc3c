package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fastConfig keeps test pauses in the low-millisecond range.
func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}
}

func TestDoFirstTrySucceeds(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})

	if res.Err != nil || res.Attempts != 1 || calls != 1 {
		t.Errorf("got err=%v attempts=%d calls=%d, want clean first call", res.Err, res.Attempts, calls)
	}
}

func TestDoRecoversAfterTransientErrors(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("rate limited")
		}
		return nil
	})

	if res.Err != nil {
		t.Fatalf("expected recovery, got %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("connection reset")
	})

	if res.Err == nil {
		t.Fatal("expected error after attempts ran out")
	}
	if calls != 3 || res.Attempts != 3 {
		t.Errorf("calls=%d attempts=%d, want 3 and 3", calls, res.Attempts)
	}
}

func TestDoStopsEarly(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", Permanent(errors.New("model not found"))},
		{"wrapped deadline", fmt.Errorf("embed call: %w", context.DeadlineExceeded)},
		{"wrapped cancel", fmt.Errorf("embed call: %w", context.Canceled)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			res := Do(context.Background(), fastConfig(5), func() error {
				calls++
				return tt.err
			})

			if calls != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", calls)
			}
			if !errors.Is(res.Err, tt.err) {
				t.Errorf("Err = %v, want the stopping error preserved", res.Err)
			}
		})
	}
}

func TestDoCanceledBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := Do(ctx, fastConfig(3), func() error {
		calls++
		return nil
	})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestDoCanceledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := Do(ctx, Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond}, func() error {
		return errors.New("rate limited")
	})

	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestDoDefaultsZeroAttempts(t *testing.T) {
	calls := 0
	res := Do(context.Background(), Config{}, func() error {
		calls++
		return errors.New("fail")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (zero MaxAttempts means one try)", calls)
	}
	if res.Err == nil {
		t.Error("expected the failure surfaced")
	}
}

func TestDoWithValueReturnsResult(t *testing.T) {
	calls := 0
	dims, res := DoWithValue(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("rate limited")
		}
		return 1536, nil
	})

	if res.Err != nil || dims != 1536 {
		t.Errorf("got (%d, %v), want (1536, nil)", dims, res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
}

func TestDoWithValuePermanent(t *testing.T) {
	calls := 0
	v, res := DoWithValue(context.Background(), fastConfig(5), func() (int, error) {
		calls++
		return -1, Permanent(errors.New("invalid model"))
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !IsPermanent(res.Err) {
		t.Error("expected permanent error in result")
	}
	if v != -1 {
		t.Errorf("value = %d, want the last attempt's value", v)
	}
}

func TestExponentialConfig(t *testing.T) {
	cfg := Exponential(5, 100*time.Millisecond, 10*time.Second)
	if cfg.MaxAttempts != 5 || cfg.Factor != 2.0 || !cfg.Jitter {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestPauseGrowthAndCap(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     350 * time.Millisecond,
		Factor:       2.0,
	}.normalized()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		350 * time.Millisecond,
		350 * time.Millisecond,
	}
	for i, w := range want {
		if got := cfg.pause(i + 1); got != w {
			t.Errorf("pause(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestPermanentTagging(t *testing.T) {
	base := errors.New("unauthorized")
	tagged := Permanent(base)

	if !IsPermanent(tagged) {
		t.Error("tagged error should be permanent")
	}
	if !errors.Is(tagged, base) {
		t.Error("tag should unwrap to the original error")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must stay nil")
	}
}

func TestIsPermanentThroughJoin(t *testing.T) {
	perm := Permanent(errors.New("schema rejected"))
	joined := errors.Join(errors.New("ingest failed"), perm)

	if !IsPermanent(joined) {
		t.Error("permanent tag should survive errors.Join")
	}
}
