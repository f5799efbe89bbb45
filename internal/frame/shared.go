package frame

import "sync"

// SharedFrame is the single slot holding the latest complete frame. One mutex
// guards the buffer, the recorded dimensions and the sequence number. Writers
// hold it for the whole fill and readers for the whole copy, so a reader sees
// either the previous complete frame or the new one, never a mix.
type SharedFrame struct {
	mu sync.Mutex

	buf    Buffer
	width  uint32
	height uint32
	seq    uint64
	ready  bool
}

// NewSharedFrame returns an empty slot.
func NewSharedFrame() *SharedFrame {
	return &SharedFrame{}
}

// Fill replaces the slot contents. It sizes the buffer to n bytes, reusing the
// allocation when n is unchanged, and calls fill with the buffer while holding
// the lock. The pixels of the frame are the trailing width*height*3 bytes of
// the buffer; anything before them is protocol framing.
//
// If fill fails the slot is left empty, so a partially written payload is never
// handed to a reader. Fill reports whether the buffer was reallocated.
func (s *SharedFrame) Fill(width, height uint32, n int, fill func(buf []byte) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reallocated := s.buf.Ensure(n)
	if err := fill(s.buf.Bytes()); err != nil {
		s.ready = false
		return reallocated, err
	}

	s.width = width
	s.height = height
	s.seq++
	s.ready = true
	return reallocated, nil
}

// View calls fn with the current frame while holding the lock. It returns false
// without calling fn when no complete frame is available.
func (s *SharedFrame) View(fn func(Frame)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return false
	}

	b := s.buf.Bytes()
	n := int(s.width) * int(s.height) * BytesPerPixel
	if n > len(b) {
		n = len(b)
	}
	fn(Frame{
		Width:  s.width,
		Height: s.height,
		Pix:    b[len(b)-n:],
		Seq:    s.seq,
	})
	return true
}

// Len returns the size of the current allocation.
func (s *SharedFrame) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Seq returns the number of frames written so far.
func (s *SharedFrame) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Release frees the buffer at shutdown. The slot reads as empty afterwards.
func (s *SharedFrame) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.ready = false
}
