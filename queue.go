package serial

import "sync"

// byteQueue is an unbounded FIFO shared by the feeder and Read.
// The lock is held only for a single push or pop.
type byteQueue struct {
	mu   sync.Mutex
	buf  []byte
	head int
}

func newByteQueue(capacity int) *byteQueue {
	return &byteQueue{buf: make([]byte, 0, capacity)}
}

// push appends a copy of p.
func (q *byteQueue) push(p []byte) {
	if len(p) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	// Reclaim consumed space before growing.
	if q.head > 0 && q.head >= len(q.buf)/2 {
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	q.buf = append(q.buf, p...)
}

// pop removes the oldest byte. ok is false when the queue is empty.
func (q *byteQueue) pop() (b byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.buf) {
		return 0, false
	}
	b = q.buf[q.head]
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return b, true
}

func (q *byteQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}
