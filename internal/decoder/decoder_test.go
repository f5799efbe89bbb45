package decoder

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/junsooki/ppmview/internal/frame"
)

type countingNotifier struct {
	count int
}

func (n *countingNotifier) Notify() {
	n.count++
}

// encodeFrame builds one wire frame whose samples all equal v.
func encodeFrame(w, h int, v byte) []byte {
	var buf bytes.Buffer
	Header{Width: uint32(w), Height: uint32(h), MaxVal: 255}.WriteTo(&buf)
	buf.WriteByte('\n')
	buf.Write(bytes.Repeat([]byte{v}, w*h*frame.BytesPerPixel))
	return buf.Bytes()
}

func newTestDecoder(t *testing.T, r io.Reader, opts Options) (*StreamDecoder, *frame.SharedFrame, *countingNotifier) {
	t.Helper()
	shared := frame.NewSharedFrame()
	n := &countingNotifier{}
	return NewStreamDecoder(r, shared, n, opts, golog.NewTestLogger(t)), shared, n
}

func viewPix(t *testing.T, shared *frame.SharedFrame) (frame.Frame, bool) {
	t.Helper()
	var got frame.Frame
	ok := shared.View(func(f frame.Frame) {
		got = f
		got.Pix = append([]byte(nil), f.Pix...)
	})
	return got, ok
}

func TestDecodeSingleFrame(t *testing.T) {
	input := append([]byte("P6 2 1 255\n"), 10, 10, 10, 20, 20, 20)
	dec, shared, n := newTestDecoder(t, bytes.NewReader(input), Options{})

	test.That(t, dec.Next(), test.ShouldBeNil)
	test.That(t, n.count, test.ShouldEqual, 1)
	test.That(t, shared.Len(), test.ShouldEqual, 7)

	f, ok := viewPix(t, shared)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, f.Width, test.ShouldEqual, uint32(2))
	test.That(t, f.Height, test.ShouldEqual, uint32(1))
	test.That(t, f.Pix, test.ShouldResemble, []byte{10, 10, 10, 20, 20, 20})

	test.That(t, dec.Next(), test.ShouldEqual, io.EOF)
}

func TestDecodeResize(t *testing.T) {
	var input bytes.Buffer
	input.Write(encodeFrame(4, 4, 1))
	input.Write(encodeFrame(2, 2, 2))
	input.Write(encodeFrame(2, 2, 3))
	input.Write(encodeFrame(3, 1, 4))
	dec, shared, n := newTestDecoder(t, &input, Options{})

	test.That(t, dec.Next(), test.ShouldBeNil)
	test.That(t, shared.Len(), test.ShouldEqual, 49)

	test.That(t, dec.Next(), test.ShouldBeNil)
	test.That(t, shared.Len(), test.ShouldEqual, 13)
	f, _ := viewPix(t, shared)
	test.That(t, f.Pix, test.ShouldResemble, bytes.Repeat([]byte{2}, 12))

	test.That(t, dec.Next(), test.ShouldBeNil)
	test.That(t, shared.Len(), test.ShouldEqual, 13)
	f, _ = viewPix(t, shared)
	test.That(t, f.Pix, test.ShouldResemble, bytes.Repeat([]byte{3}, 12))

	// each frame consumed exactly its payload, so the next header lines up
	test.That(t, dec.Next(), test.ShouldBeNil)
	test.That(t, shared.Len(), test.ShouldEqual, 10)
	f, _ = viewPix(t, shared)
	test.That(t, f.Width, test.ShouldEqual, uint32(3))
	test.That(t, f.Pix, test.ShouldResemble, bytes.Repeat([]byte{4}, 9))

	test.That(t, n.count, test.ShouldEqual, 4)
	test.That(t, dec.Frames(), test.ShouldEqual, uint64(4))
}

func TestDecodeBadMagic(t *testing.T) {
	dec, shared, n := newTestDecoder(t, strings.NewReader("BAD 2 1 255\n\x00\x00\x00\x00\x00\x00"), Options{})

	err := dec.Run(context.Background())
	test.That(t, errors.Is(err, ErrBadMagic), test.ShouldBeTrue)
	test.That(t, n.count, test.ShouldEqual, 0)
	test.That(t, shared.Len(), test.ShouldEqual, 0)
	_, ok := viewPix(t, shared)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDecodeBadMagicKeepsPreviousFrame(t *testing.T) {
	var input bytes.Buffer
	input.Write(encodeFrame(2, 2, 5))
	input.WriteString("BAD 2 2 255\n")
	input.Write(bytes.Repeat([]byte{9}, 13))
	dec, shared, n := newTestDecoder(t, &input, Options{})

	err := dec.Run(context.Background())
	test.That(t, errors.Is(err, ErrBadMagic), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"BAD"`)
	test.That(t, n.count, test.ShouldEqual, 1)

	f, ok := viewPix(t, shared)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, f.Seq, test.ShouldEqual, uint64(1))
	test.That(t, f.Pix, test.ShouldResemble, bytes.Repeat([]byte{5}, 12))
}

func TestDecodeShortRead(t *testing.T) {
	var input bytes.Buffer
	input.Write(encodeFrame(2, 2, 5))
	input.WriteString("P6 2 2 255\n")
	input.Write([]byte{1, 2, 3, 4})
	dec, shared, n := newTestDecoder(t, &input, Options{})

	err := dec.Run(context.Background())
	test.That(t, errors.Is(err, ErrShortRead), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "read 5 instead of 13")
	test.That(t, n.count, test.ShouldEqual, 1)

	// the half written payload is never offered to a reader
	_, ok := viewPix(t, shared)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, shared.Seq(), test.ShouldEqual, uint64(1))
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var input bytes.Buffer
	input.Write(encodeFrame(2, 2, 5))
	input.Write(encodeFrame(10, 10, 6))
	dec, shared, n := newTestDecoder(t, &input, Options{MaxFrameBytes: 100})

	err := dec.Run(context.Background())
	test.That(t, errors.Is(err, ErrFrameTooLarge), test.ShouldBeTrue)
	test.That(t, n.count, test.ShouldEqual, 1)
	test.That(t, shared.Len(), test.ShouldEqual, 13)
	_, ok := viewPix(t, shared)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestDecodeRunToEOF(t *testing.T) {
	var input bytes.Buffer
	input.Write(encodeFrame(1, 1, 1))
	input.Write(encodeFrame(1, 1, 2))
	input.WriteString("\n")
	dec, _, n := newTestDecoder(t, &input, Options{})

	test.That(t, dec.Run(context.Background()), test.ShouldBeNil)
	test.That(t, dec.Frames(), test.ShouldEqual, uint64(2))
	test.That(t, n.count, test.ShouldEqual, 2)
}

func TestDecodeRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dec, _, n := newTestDecoder(t, bytes.NewReader(encodeFrame(1, 1, 1)), Options{})

	test.That(t, dec.Run(ctx), test.ShouldBeNil)
	test.That(t, n.count, test.ShouldEqual, 0)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("pipe broke")
}

func TestDecodeReadError(t *testing.T) {
	dec, _, _ := newTestDecoder(t, io.MultiReader(strings.NewReader("P6 1 1 255\n"), failingReader{}), Options{})

	err := dec.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pipe broke")
	test.That(t, errors.Is(err, ErrShortRead), test.ShouldBeFalse)
}

func TestDecodeLogsResizeOnly(t *testing.T) {
	var input bytes.Buffer
	input.Write(encodeFrame(2, 2, 1))
	input.Write(encodeFrame(2, 2, 2))
	input.Write(encodeFrame(1, 1, 3))
	logger, logs := golog.NewObservedTestLogger(t)
	dec := NewStreamDecoder(&input, frame.NewSharedFrame(), &countingNotifier{}, Options{}, logger)

	test.That(t, dec.Run(context.Background()), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("frame buffer resized").Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("end of stream").Len(), test.ShouldEqual, 1)
}
