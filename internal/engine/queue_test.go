package engine

import (
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := newFIFO()
	for i := 0; i < 10; i++ {
		q.push(Change{Index: i})
	}

	if q.len() != 10 {
		t.Fatalf("expected 10 queued changes, got %d", q.len())
	}

	for i := 0; i < 10; i++ {
		c, ok := q.tryPop()
		if !ok {
			t.Fatalf("queue empty at %d", i)
		}
		if c.Index != i {
			t.Errorf("expected change %d, got %d", i, c.Index)
		}
	}

	if _, ok := q.tryPop(); ok {
		t.Error("expected empty queue")
	}
}

func TestFIFOPopBlocks(t *testing.T) {
	q := newFIFO()
	got := make(chan Change, 1)

	go func() {
		c, ok := q.pop()
		if ok {
			got <- c
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(Change{Index: 7})

	select {
	case c := <-got:
		if c.Index != 7 {
			t.Errorf("expected change 7, got %d", c.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after push")
	}
}

func TestFIFOClose(t *testing.T) {
	q := newFIFO()
	q.push(Change{Index: 1})
	q.close()

	if c, ok := q.pop(); !ok || c.Index != 1 {
		t.Fatal("queued change should survive close")
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on closed empty queue should report done")
	}

	q.push(Change{Index: 2})
	if q.len() != 0 {
		t.Error("push after close should be dropped")
	}
}
