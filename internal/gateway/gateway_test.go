package gateway

import (
	"testing"

	"github.com/san-kum/virtacc/internal/record"
)

func TestLoopbackGetPut(t *testing.T) {
	lb := NewLoopback()
	lb.Register(record.NewCell("VA-TEST:A", record.Scalar(1)))

	v, err := lb.Get("VA-TEST:A")
	if err != nil {
		t.Fatal(err)
	}
	if v.First() != 1 {
		t.Errorf("expected 1, got %g", v.First())
	}

	if err := lb.Put("VA-TEST:A", record.Scalar(2)); err != nil {
		t.Fatal(err)
	}
	v, _ = lb.Get("VA-TEST:A")
	if v.First() != 2 {
		t.Errorf("expected 2 after put, got %g", v.First())
	}
}

func TestLoopbackUnknownPV(t *testing.T) {
	lb := NewLoopback()
	if _, err := lb.Get("VA-NOPE:X"); err == nil {
		t.Error("expected error for unknown point")
	}
	if err := lb.Put("VA-NOPE:X", record.Scalar(1)); err == nil {
		t.Error("expected error for unknown point")
	}
	if _, err := lb.Monitor("VA-NOPE:X", func(record.Value) {}); err == nil {
		t.Error("expected error for unknown point")
	}
}

func TestLoopbackMonitorIsSynchronous(t *testing.T) {
	lb := NewLoopback()
	lb.Register(record.NewCell("VA-TEST:A", record.Scalar(0)))

	var seen []float64
	cancel, err := lb.Monitor("VA-TEST:A", func(v record.Value) {
		seen = append(seen, v.First())
	})
	if err != nil {
		t.Fatal(err)
	}

	// no goroutines involved: the callback must have run when Put returns
	lb.Put("VA-TEST:A", record.Scalar(5))
	if len(seen) != 1 || seen[0] != 5 {
		t.Fatalf("expected synchronous delivery of 5, got %v", seen)
	}

	cancel()
	lb.Put("VA-TEST:A", record.Scalar(6))
	if len(seen) != 1 {
		t.Errorf("cancelled monitor still fired: %v", seen)
	}
}
