package record

import (
	"testing"
)

func TestCellSetGet(t *testing.T) {
	c := NewCell("TEST:A", Scalar(1.5))

	if c.Name() != "TEST:A" {
		t.Errorf("expected name TEST:A, got %s", c.Name())
	}
	if got := c.Get().First(); got != 1.5 {
		t.Errorf("expected 1.5, got %g", got)
	}

	c.Set(Scalar(2.5))
	if got := c.Get().First(); got != 2.5 {
		t.Errorf("expected 2.5 after set, got %g", got)
	}
}

func TestCellNotifiesSubscribers(t *testing.T) {
	c := NewCell("TEST:A", Scalar(0))

	var seen []float64
	c.OnChange(func(v Value) { seen = append(seen, v.First()) })
	c.OnChange(func(v Value) { seen = append(seen, v.First()*10) })

	c.Set(Scalar(3))

	if len(seen) != 2 {
		t.Fatalf("expected both subscribers to fire, got %d calls", len(seen))
	}
	if seen[0] != 3 || seen[1] != 30 {
		t.Errorf("unexpected notification values %v", seen)
	}
}

func TestCellValueIsolation(t *testing.T) {
	c := NewCell("TEST:W", Value{1, 2, 3})

	got := c.Get()
	got[0] = 99
	if c.Get()[0] != 1 {
		t.Error("Get must hand out a copy")
	}

	in := Value{4, 5, 6}
	c.Set(in)
	in[0] = 99
	if c.Get()[0] != 4 {
		t.Error("Set must store a copy")
	}
}

func TestCellReentrantSet(t *testing.T) {
	c := NewCell("TEST:A", Scalar(0))

	var order []float64
	c.OnChange(func(v Value) {
		order = append(order, v.First())
		// a subscriber pushing the value toward a bound must not recurse
		if v.First() < 3 {
			c.Set(Scalar(v.First() + 1))
		}
	})

	c.Set(Scalar(0))

	want := []float64{0, 1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("expected %d notifications, got %d (%v)", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("notification order %v, want %v", order, want)
		}
	}
	if got := c.Get().First(); got != 3 {
		t.Errorf("expected final value 3, got %g", got)
	}
}

func TestInverseTransform(t *testing.T) {
	out, err := Inverse(Value{0, 1, 7})
	if err != nil {
		t.Fatal(err)
	}
	want := Value{1, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("inverse of [0 1 7] = %v, want %v", out, want)
		}
	}

	if _, err := Inverse(nil); err == nil {
		t.Error("inverse of empty value should fail")
	}
}
