package asyncio

import "testing"

func TestBufInvariants(t *testing.T) {
	b := NewBuf(8)
	if !b.TryWriteAll([]byte("hello")) {
		t.Fatal("expected write to fit")
	}
	if b.DataSize() != 5 {
		t.Fatalf("DataSize = %d, want 5", b.DataSize())
	}
	b.Consume(5)
	if b.DataSize() != 0 {
		t.Fatalf("DataSize after full consume = %d, want 0", b.DataSize())
	}
	if b.pos != 0 || b.end != 0 {
		t.Fatalf("cursors not collapsed to zero: pos=%d end=%d", b.pos, b.end)
	}
}

func TestBufConsumeTooMuchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic consuming more than DataSize")
		}
	}()
	b := NewBuf(8)
	b.WriteAll([]byte("ab"))
	b.Consume(3)
}

func TestBufTryReserveSlidesOnlyWhenProductive(t *testing.T) {
	b := NewBuf(16)
	b.WriteAll(make([]byte, 4))
	b.Consume(2) // pos=2, end=4, live=2, headSlack=2: slide is productive

	if !b.TryReserve(14) {
		t.Fatal("expected TryReserve to succeed by sliding live data to head")
	}
	if b.pos != 0 {
		t.Fatalf("expected slide to reset pos to 0, got %d", b.pos)
	}

	b2 := NewBuf(16)
	b2.WriteAll(make([]byte, 8))
	b2.Consume(2) // pos=2, end=8, live=6 > headSlack=2: slide is not productive

	if b2.TryReserve(10) {
		t.Fatal("expected TryReserve to fail rather than slide when live data exceeds head slack")
	}
	if b2.pos != 2 {
		t.Fatalf("expected no slide, pos = %d, want 2", b2.pos)
	}
}

func TestBufReserveGrows(t *testing.T) {
	b := NewBuf(4)
	b.Reserve(100)
	if b.Cap() < 100 {
		t.Fatalf("Cap() = %d, want >= 100", b.Cap())
	}
	if b.pos != 0 {
		t.Fatalf("Reserve must leave pos at 0, got %d", b.pos)
	}
}
