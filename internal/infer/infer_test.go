package infer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSingletonCachesFirstFailure(t *testing.T) {
	var calls int32
	wantErr := errors.New("boom")
	loader = func() (*Driver, error) {
		atomic.AddInt32(&calls, 1)
		return nil, wantErr
	}
	singleton = sync.OnceValues(loadSingleton)

	for i := 0; i < 5; i++ {
		_, err := singleton()
		if !errors.Is(err, wantErr) {
			t.Fatalf("call %d: got %v, want %v", i, err, wantErr)
		}
	}
	if calls != 1 {
		t.Fatalf("constructor called %d times, want 1 (first failure is cached)", calls)
	}
}

func TestUnconfiguredSingletonFails(t *testing.T) {
	loader = nil
	singleton = sync.OnceValues(loadSingleton)

	_, err := singleton()
	if !errors.Is(err, errUnconfigured) {
		t.Fatalf("got %v, want errUnconfigured", err)
	}
}
