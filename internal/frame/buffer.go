package frame

// Buffer is an owned byte container sized to exactly the last requested length.
type Buffer struct {
	b []byte
}

// Ensure makes the buffer exactly n bytes long. A different length discards the
// old contents and allocates n zeroed bytes. The same length keeps the existing
// allocation and its contents. It reports whether a new allocation was made.
func (b *Buffer) Ensure(n int) bool {
	if b.b != nil && len(b.b) == n {
		return false
	}
	b.b = make([]byte, n)
	return true
}

// Bytes returns the backing slice. It is only valid until the next Ensure.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Len returns the current length.
func (b *Buffer) Len() int {
	return len(b.b)
}

// Reset drops the allocation.
func (b *Buffer) Reset() {
	b.b = nil
}
