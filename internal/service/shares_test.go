package service

import "testing"

func TestShareTracker(t *testing.T) {
	t.Run("delta per poll", func(t *testing.T) {
		tr := NewShareTracker()
		if n := tr.Advance(1, 100); n != 10 {
			t.Errorf("first reading of 100 = %d records, want cap of 10", n)
		}
		if n := tr.Advance(1, 103); n != 3 {
			t.Errorf("100 -> 103 = %d records, want 3", n)
		}
		if n := tr.Advance(1, 103); n != 0 {
			t.Errorf("unchanged counter = %d records, want 0", n)
		}
	})

	t.Run("cap advances baseline fully", func(t *testing.T) {
		tr := NewShareTracker()
		tr.Advance(1, 10)
		if n := tr.Advance(1, 60); n != 10 {
			t.Errorf("jump of 50 = %d records, want 10", n)
		}
		// The uncapped remainder is never replayed.
		if n := tr.Advance(1, 61); n != 1 {
			t.Errorf("after capped jump, 60 -> 61 = %d records, want 1", n)
		}
	})

	t.Run("counter reset rebases silently", func(t *testing.T) {
		tr := NewShareTracker()
		tr.Advance(1, 500)
		if n := tr.Advance(1, 4); n != 0 {
			t.Errorf("backwards counter = %d records, want 0", n)
		}
		if n := tr.Advance(1, 6); n != 2 {
			t.Errorf("after rebase, 4 -> 6 = %d records, want 2", n)
		}
	})

	t.Run("devices are independent", func(t *testing.T) {
		tr := NewShareTracker()
		tr.Advance(1, 5)
		if n := tr.Advance(2, 5); n != 5 {
			t.Errorf("second device first reading = %d, want 5", n)
		}
	})

	t.Run("forget clears baseline", func(t *testing.T) {
		tr := NewShareTracker()
		tr.Advance(1, 7)
		tr.Forget(1)
		if n := tr.Advance(1, 7); n != 7 {
			t.Errorf("after forget = %d records, want 7", n)
		}
	})
}
