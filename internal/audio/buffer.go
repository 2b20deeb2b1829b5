// Package audio holds the PCM16 helpers used on the server-side recognition
// and read-aloud paths.
package audio

import (
	"sync"
)

// RingBuffer keeps the most recent audio while a recognizer stream is not
// open. When full, the oldest bytes are overwritten.
type RingBuffer struct {
	buffer  []byte
	start   int
	length  int
	dropped int64
	mu      sync.Mutex
}

// NewRingBuffer creates a ring buffer holding up to size bytes
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buffer: make([]byte, size)}
}

// Write appends data, evicting the oldest bytes on overflow.
// It returns the number of bytes evicted.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	evicted := 0
	if len(data) >= size {
		evicted = rb.length + len(data) - size
		copy(rb.buffer, data[len(data)-size:])
		rb.start = 0
		rb.length = size
		rb.dropped += int64(evicted)
		return evicted
	}

	for _, b := range data {
		if rb.length == size {
			rb.start = (rb.start + 1) % size
			rb.length--
			evicted++
		}
		rb.buffer[(rb.start+rb.length)%size] = b
		rb.length++
	}
	rb.dropped += int64(evicted)
	return evicted
}

// Drain returns the buffered bytes in write order and empties the buffer
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.length)
	size := len(rb.buffer)
	for i := 0; i < rb.length; i++ {
		out[i] = rb.buffer[(rb.start+i)%size]
	}
	rb.start = 0
	rb.length = 0
	return out
}

// Available returns the number of buffered bytes
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

// Dropped returns the total number of bytes evicted since creation
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Clear discards buffered audio
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.length = 0
}
