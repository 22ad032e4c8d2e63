package ev

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchPreservesOrder(t *testing.T) {
	q := New[int]()
	defer q.Stop()

	for i := 0; i < 5; i++ {
		q.Add() <- i
	}

	var got []int
	deadline := time.After(2 * time.Second)
	for len(got) < 5 {
		select {
		case batch := <-q.Get():
			got = append(got, batch...)
		case <-deadline:
			t.Fatal("queue never drained")
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestReceiveEmptiesQueue(t *testing.T) {
	q := New[string]()
	defer q.Stop()

	q.Add() <- "a"

	select {
	case batch := <-q.Get():
		require.Equal(t, []string{"a"}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch")
	}

	// Nothing pending until the next add.
	select {
	case batch := <-q.Get():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddDoesNotBlockOnConsumer(t *testing.T) {
	q := New[int]()
	defer q.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Add() <- i
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("adds blocked without a consumer")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	q := New[int]()
	q.Stop()
	q.Stop()
}
