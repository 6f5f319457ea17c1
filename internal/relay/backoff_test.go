package relay

import (
	"reflect"
	"testing"
	"time"
)

func TestBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := BackoffDelay(i+1, time.Second, 30*time.Second); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestBackoffDelayLargeAttemptDoesNotOverflow(t *testing.T) {
	if got := BackoffDelay(200, time.Second, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" aapl", "MSFT", "", "AAPL ", "  ", "btc-usd"})
	want := []string{"AAPL", "MSFT", "BTC-USD"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
