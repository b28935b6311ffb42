package worksteal

import (
	"sync/atomic"
	"testing"
	"unsafe"
)

func TestSizeOfConstants(t *testing.T) {
	if v := unsafe.Sizeof(atomic.Uint32{}); v != sizeOfAtomicUint32 {
		t.Errorf("sizeOfAtomicUint32 = %d, want %d", sizeOfAtomicUint32, v)
	}
	if v := unsafe.Sizeof(atomic.Uint64{}); v != sizeOfAtomicUint64 {
		t.Errorf("sizeOfAtomicUint64 = %d, want %d", sizeOfAtomicUint64, v)
	}
}

// TestPadding verifies contended fields sit on separate cache lines.
func TestPadding(t *testing.T) {
	var q LocalQueue
	if d := unsafe.Offsetof(q.tail) - unsafe.Offsetof(q.head); d < sizeOfCacheLine {
		t.Errorf("LocalQueue head/tail distance %d", d)
	}
	if d := unsafe.Offsetof(q.fast) - unsafe.Offsetof(q.tail); d < sizeOfCacheLine {
		t.Errorf("LocalQueue tail/fast distance %d", d)
	}

	var inj Injector
	if d := unsafe.Offsetof(inj.head) - unsafe.Offsetof(inj.tail); d < sizeOfCacheLine {
		t.Errorf("Injector tail/head distance %d", d)
	}
	if d := unsafe.Offsetof(inj.length) - unsafe.Offsetof(inj.consuming); d < sizeOfCacheLine {
		t.Errorf("Injector consuming/length distance %d", d)
	}

	var s Scheduler
	if unsafe.Offsetof(s.current) < sizeOfCacheLine {
		t.Errorf("Scheduler current offset %d", unsafe.Offsetof(s.current))
	}
}
