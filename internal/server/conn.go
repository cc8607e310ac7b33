package server

import (
	"errors"
	"sync"
)

// sendBuffer is the per-observer queue depth. An observer that falls this
// far behind is dropped by the hub rather than allowed to stall delivery.
const sendBuffer = 64

var (
	errSlowConsumer = errors.New("observer send buffer full")
	errConnClosed   = errors.New("observer conn closed")
)

// sendQueue is the non-blocking delivery queue shared by both transport
// adapters. Send never blocks the broadcast path: a full buffer or a closed
// conn reports an error and the hub drops the observer.
type sendQueue struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newSendQueue() sendQueue {
	return sendQueue{
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (q *sendQueue) Send(data []byte) error {
	select {
	case <-q.done:
		return errConnClosed
	default:
	}
	select {
	case q.send <- data:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close wakes the transport pump; it does not touch the underlying
// connection, which the pump owns. Safe to call more than once.
func (q *sendQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
