// Package frame holds the latest decoded P6 frame shared between the decoder and
// its consumers.
package frame

// BytesPerPixel is the sample count of one P6 pixel.
const BytesPerPixel = 3

// Frame is a read-only view of a complete frame. Pix is only valid inside the
// SharedFrame.View callback that produced it.
type Frame struct {
	Width  uint32
	Height uint32
	// Pix holds Width*Height*3 samples, row-major, without the separator byte.
	Pix []byte
	// Seq is the decode iteration that wrote this frame, starting at 1.
	Seq uint64
}

// Stride returns the byte length of one row.
func (f Frame) Stride() int {
	return int(f.Width) * BytesPerPixel
}

// Offset returns the index in Pix of the first sample of pixel (x, y).
func (f Frame) Offset(x, y int) int {
	return y*f.Stride() + x*BytesPerPixel
}
