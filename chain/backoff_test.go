package chain

import "testing"

func TestBackoffCapsAtThirtySeconds(t *testing.T) {
	b := &backoff{}
	var max int64
	for i := 0; i < 10; i++ {
		d := b.next()
		if int64(d) > max {
			max = int64(d)
		}
	}
	if max > int64(30_000_000_000) {
		t.Fatalf("backoff exceeded cap: %d ns", max)
	}
}

func TestBackoffResetsAttempt(t *testing.T) {
	b := &backoff{attempt: 5}
	b.reset()
	if b.attempt != 0 {
		t.Fatalf("want attempt reset to 0, got %d", b.attempt)
	}
}
