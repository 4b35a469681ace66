package security

import (
	"testing"
	"time"

	"github.com/Zhq8745/voice-account-auth/internal/testutil"
)

func throttleClock() *testutil.MockClock {
	return testutil.NewMockClock(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
}

func TestThrottle_Allow(t *testing.T) {
	th := NewThrottle(10, 3, 0, nil, throttleClock())
	defer th.Stop()

	for i := 0; i < 3; i++ {
		if !th.Allow("10.0.0.1") {
			t.Errorf("Allow() request %d should be allowed within burst", i+1)
		}
	}
	if th.Allow("10.0.0.1") {
		t.Error("Allow() beyond burst = true, want false")
	}
}

func TestThrottle_RefillsOverTime(t *testing.T) {
	clk := throttleClock()
	th := NewThrottle(1, 1, 0, nil, clk)
	defer th.Stop()

	if !th.Allow("10.0.0.1") {
		t.Fatal("Allow(first) = false, want true")
	}
	if th.Allow("10.0.0.1") {
		t.Fatal("Allow(immediate retry) = true, want false")
	}

	clk.Advance(time.Second)

	if !th.Allow("10.0.0.1") {
		t.Error("Allow() after refill interval = false, want true")
	}
}

func TestThrottle_IdentifiersAreIndependent(t *testing.T) {
	th := NewThrottle(10, 1, 0, nil, throttleClock())
	defer th.Stop()

	if !th.Allow("10.0.0.1") {
		t.Error("Allow(first) = false, want true")
	}
	if th.Allow("10.0.0.1") {
		t.Error("Allow(first again) = true, want false")
	}
	if !th.Allow("10.0.0.2") {
		t.Error("Allow(second) = false, want true (separate bucket)")
	}
}

func TestThrottle_LRUEviction(t *testing.T) {
	th := NewThrottle(10, 1, 2, nil, throttleClock())
	defer th.Stop()

	th.Allow("a")
	th.Allow("b")
	th.Allow("c") // evicts "a"

	if got := len(th.limiters); got != 2 {
		t.Errorf("tracked identifiers = %d, want 2", got)
	}
	if _, exists := th.limiters["a"]; exists {
		t.Error("least recently used identifier should have been evicted")
	}
}

func TestThrottle_Cleanup(t *testing.T) {
	clk := throttleClock()
	th := NewThrottle(10, 1, 0, nil, clk)
	defer th.Stop()

	th.Allow("10.0.0.1")
	clk.Advance(10 * time.Minute)
	th.Allow("10.0.0.2")

	th.Cleanup(5 * time.Minute)

	if _, exists := th.limiters["10.0.0.1"]; exists {
		t.Error("idle identifier survived cleanup")
	}
	if _, exists := th.limiters["10.0.0.2"]; !exists {
		t.Error("recently active identifier was cleaned up")
	}
}
