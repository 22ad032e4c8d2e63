// Package ev provides the event queues that feed the compositor's
// single control loop. Producers run on their own goroutines and add
// events one at a time; the loop drains them in batches, preserving
// per-producer submission order.
package ev

import "sync"

// Queue is an unbounded concurrent event queue. Adds never block on
// the consumer and batches come out in submission order.
type Queue[T any] struct {
	done  chan struct{}
	close sync.Once

	add chan T
	get chan []T
}

func New[T any]() *Queue[T] {
	q := Queue[T]{
		done: make(chan struct{}),
		add:  make(chan T),
		get:  make(chan []T),
	}
	go q.run()

	return &q
}

// Add returns the channel that events are submitted on.
func (q *Queue[T]) Add() chan<- T {
	return q.add
}

// Get returns the channel that batches of pending events are received
// on. A receive empties the queue.
func (q *Queue[T]) Get() <-chan []T {
	return q.get
}

func (q *Queue[T]) Stop() {
	q.close.Do(func() {
		close(q.done)
	})
}

func (q *Queue[T]) run() {
	var s []T
	var get chan []T

	for {
		select {
		case <-q.done:
			return

		case v := <-q.add:
			s = append(s, v)
			get = q.get

		case get <- s:
			s = nil
			get = nil
		}
	}
}
