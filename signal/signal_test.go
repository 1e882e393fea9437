// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package signal

import (
	"testing"
	"time"
)

func TestAwaitReceivesEmitAfterWaitStarts(t *testing.T) {
	s := New[int]()

	// Only goroutines already waiting receive an emission (see
	// TestEmitDeliversOnlyToCurrentWaiters); an emit that happens after
	// Await has started must be observed.
	done := make(chan any, 1)
	go func() {
		data, err := s.AwaitTimeout("NAMES_RESPONSE", time.Second)
		if err != nil {
			t.Errorf("unexpected timeout: %v", err)
		}
		done <- data
	}()
	time.Sleep(10 * time.Millisecond)
	s.Emit(0, "NAMES_RESPONSE", []string{"a", "b"})

	select {
	case data := <-done:
		got, ok := data.([]string)
		if !ok || len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Fatalf("got %#v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("awaiter never received emission")
	}
}

func TestAwaitTimesOutWithoutEmit(t *testing.T) {
	s := New[int]()
	_, err := s.AwaitTimeout("NEVER", 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestEmitDeliversOnlyToCurrentWaiters(t *testing.T) {
	s := New[int]()
	s.Emit(0, "EARLY", "lost") // nobody waiting yet

	_, err := s.AwaitTimeout("EARLY", 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("a late waiter must not receive an earlier emission, err = %v", err)
	}
}

func TestEachWaiterGetsExactlyOneDelivery(t *testing.T) {
	s := New[int]()
	n := 5
	results := make(chan any, n)
	for i := 0; i < n; i++ {
		go func() {
			data, err := s.AwaitTimeout("FANOUT", time.Second)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results <- data
		}()
	}
	time.Sleep(20 * time.Millisecond)
	s.Emit(0, "FANOUT", "payload")

	for i := 0; i < n; i++ {
		select {
		case <-results:
		case <-time.After(time.Second):
			t.Fatal("not all waiters were delivered to")
		}
	}
}
