package anywork

import (
	"sync/atomic"
	"testing"
)

func TestBacklogAndSync(t *testing.T) {
	var counter int64
	for at := 0; at < 100; at++ {
		Backlog(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
	if err := Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if atomic.LoadInt64(&counter) != 100 {
		t.Errorf("all backlogged work must run, got %d", counter)
	}
}

func TestPanicsAreCounted(t *testing.T) {
	Backlog(func() {
		panic("deliberate test failure")
	})
	if err := Sync(); err == nil {
		t.Errorf("panicking work must surface through Sync")
	}
}

func TestNilWorkIsIgnored(t *testing.T) {
	Backlog(nil)
	if err := Sync(); err != nil {
		t.Errorf("nil work must be a no-op: %v", err)
	}
}

func TestScaleIsPositive(t *testing.T) {
	if Scale() < 1 {
		t.Errorf("pool must have at least one member")
	}
}
