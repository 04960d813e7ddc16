package capture

import (
	"sync"
)

// Buffer is a growable, goroutine-safe byte sink for one captured channel.
// With a positive limit it keeps only the most recent limit bytes.
type Buffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

// NewBuffer creates a Buffer. maxBytes <= 0 means unbounded.
func NewBuffer(maxBytes int) *Buffer {
	return &Buffer{maxBytes: maxBytes}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if b.maxBytes > 0 && len(b.contents) > b.maxBytes {
		// Trim the front to keep the most recent bytes
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

// String returns a copy of the retained contents
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

// TotalBytes returns the number of bytes ever written, retained or not
func (b *Buffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Truncated reports whether older bytes were dropped to honour the limit
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}
