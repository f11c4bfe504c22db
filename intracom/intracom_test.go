package intracom

import (
	"errors"
	"testing"
)

func TestBufferPolicyDropOldest(t *testing.T) {
	ch := make(chan int, 2)
	stopC := make(chan struct{})
	policy := BufferPolicyDropOldest[int]{}

	for i := 1; i <= 3; i++ {
		if err := policy.Handle(ch, i, stopC); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := <-ch; got != 2 {
		t.Fatalf("expected oldest message to be dropped, got %d first", got)
	}
	if got := <-ch; got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestBufferPolicyDropNewest(t *testing.T) {
	ch := make(chan int, 1)
	stopC := make(chan struct{})
	policy := BufferPolicyDropNewest[int]{}

	if err := policy.Handle(ch, 1, stopC); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := policy.Handle(ch, 2, stopC); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	if got := <-ch; got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestBufferPolicyDropNoneStopped(t *testing.T) {
	ch := make(chan int)
	stopC := make(chan struct{})
	close(stopC)

	if err := (BufferPolicyDropNone[int]{}).Handle(ch, 1, stopC); !errors.Is(err, ErrSubscriberStopped) {
		t.Fatalf("expected ErrSubscriberStopped, got %v", err)
	}
}
