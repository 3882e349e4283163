package utils

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type OptionalRWMutex struct {
	Mutex    sync.RWMutex
	UseMutex bool
}

func (m *OptionalRWMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.UseMutex {
		m.Mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.UseMutex {
		m.Mutex.RUnlock()
	}
}

// SpinLock is a test-and-set lock over a single atomic flag. It is safe to take from a callback
// that runs while other goroutines hold unrelated sync.Mutex locks.
type SpinLock struct {
	flag atomic.Bool
}

func (l *SpinLock) Lock() {
	for !l.flag.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *SpinLock) TryLock() bool {
	return l.flag.CompareAndSwap(false, true)
}

func (l *SpinLock) Unlock() {
	if !l.flag.CompareAndSwap(true, false) {
		panic("unlock of unlocked spin lock")
	}
}

func (l *SpinLock) Locked() bool {
	return l.flag.Load()
}
