package frame

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func fillWith(v byte) func([]byte) error {
	return func(buf []byte) error {
		for i := range buf {
			buf[i] = v
		}
		return nil
	}
}

func TestBufferEnsure(t *testing.T) {
	var b Buffer
	test.That(t, b.Len(), test.ShouldEqual, 0)

	test.That(t, b.Ensure(49), test.ShouldBeTrue)
	test.That(t, b.Len(), test.ShouldEqual, 49)
	b.Bytes()[0] = 7
	first := &b.Bytes()[0]

	// same size keeps the allocation and its contents
	test.That(t, b.Ensure(49), test.ShouldBeFalse)
	test.That(t, &b.Bytes()[0] == first, test.ShouldBeTrue)
	test.That(t, b.Bytes()[0], test.ShouldEqual, byte(7))

	// a new size allocates exactly and zero fills
	test.That(t, b.Ensure(13), test.ShouldBeTrue)
	test.That(t, b.Len(), test.ShouldEqual, 13)
	test.That(t, cap(b.Bytes()), test.ShouldEqual, 13)
	for _, v := range b.Bytes() {
		test.That(t, v, test.ShouldEqual, byte(0))
	}

	test.That(t, b.Ensure(0), test.ShouldBeTrue)
	test.That(t, b.Ensure(0), test.ShouldBeFalse)
}

func TestSharedFrameEmpty(t *testing.T) {
	s := NewSharedFrame()
	called := false
	test.That(t, s.View(func(Frame) { called = true }), test.ShouldBeFalse)
	test.That(t, called, test.ShouldBeFalse)
	test.That(t, s.Seq(), test.ShouldEqual, uint64(0))
}

func TestSharedFrameFillAndView(t *testing.T) {
	s := NewSharedFrame()

	reallocated, err := s.Fill(2, 1, 7, func(buf []byte) error {
		copy(buf, []byte{'\n', 10, 10, 10, 20, 20, 20})
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reallocated, test.ShouldBeTrue)

	ok := s.View(func(f Frame) {
		test.That(t, f.Width, test.ShouldEqual, uint32(2))
		test.That(t, f.Height, test.ShouldEqual, uint32(1))
		test.That(t, f.Seq, test.ShouldEqual, uint64(1))
		test.That(t, f.Pix, test.ShouldResemble, []byte{10, 10, 10, 20, 20, 20})
		test.That(t, f.Offset(1, 0), test.ShouldEqual, 3)
	})
	test.That(t, ok, test.ShouldBeTrue)

	reallocated, err = s.Fill(2, 1, 7, fillWith(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reallocated, test.ShouldBeFalse)
	test.That(t, s.Seq(), test.ShouldEqual, uint64(2))
}

func TestSharedFrameResize(t *testing.T) {
	s := NewSharedFrame()

	_, err := s.Fill(4, 4, 49, fillWith(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Len(), test.ShouldEqual, 49)

	reallocated, err := s.Fill(2, 2, 13, func(buf []byte) error {
		// the old 49 byte contents must be gone before the read
		test.That(t, len(buf), test.ShouldEqual, 13)
		for _, v := range buf {
			test.That(t, v, test.ShouldEqual, byte(0))
		}
		return fillWith(2)(buf)
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reallocated, test.ShouldBeTrue)
	test.That(t, s.Len(), test.ShouldEqual, 13)

	s.View(func(f Frame) {
		test.That(t, f.Pix, test.ShouldHaveLength, 12)
	})
}

func TestSharedFrameFailedFill(t *testing.T) {
	s := NewSharedFrame()
	_, err := s.Fill(1, 1, 4, fillWith(9))
	test.That(t, err, test.ShouldBeNil)

	errBoom := errors.New("boom")
	_, err = s.Fill(1, 1, 4, func(buf []byte) error {
		buf[1] = 0
		return errBoom
	})
	test.That(t, err, test.ShouldEqual, errBoom)
	test.That(t, s.View(func(Frame) {}), test.ShouldBeFalse)
	test.That(t, s.Seq(), test.ShouldEqual, uint64(1))
}

func TestSharedFrameRelease(t *testing.T) {
	s := NewSharedFrame()
	_, err := s.Fill(1, 1, 4, fillWith(9))
	test.That(t, err, test.ShouldBeNil)
	s.Release()
	test.That(t, s.Len(), test.ShouldEqual, 0)
	test.That(t, s.View(func(Frame) {}), test.ShouldBeFalse)
}

// Frames alternate between two sizes and every byte of frame i holds i, so a
// reader can tell whether dimensions and payload came from the same fill.
func TestSharedFrameNoTornReads(t *testing.T) {
	s := NewSharedFrame()
	const frames = 2000

	dims := func(seq uint64) (uint32, uint32) {
		if seq%2 == 0 {
			return 4, 4
		}
		return 2, 3
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := uint64(1); i <= frames; i++ {
			w, h := dims(i)
			n := int(w*h)*BytesPerPixel + 1
			if _, err := s.Fill(w, h, n, fillWith(byte(i))); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	var bad int
	go func() {
		defer wg.Done()
		for s.Seq() < frames {
			s.View(func(f Frame) {
				w, h := dims(f.Seq)
				if f.Width != w || f.Height != h || len(f.Pix) != int(w*h)*BytesPerPixel {
					bad++
					return
				}
				for _, v := range f.Pix {
					if v != byte(f.Seq) {
						bad++
						return
					}
				}
			})
		}
	}()

	wg.Wait()
	test.That(t, bad, test.ShouldEqual, 0)
}
