// Package frame defines the pixel buffer passed between capture, detection and sinks.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"
)

// Layout names the byte order of a packed pixel buffer.
type Layout string

// LayoutBGR24 is 3 bytes per pixel in B, G, R order (ffmpeg "bgr24", OpenCV default).
const LayoutBGR24 Layout = "bgr24"

const bytesPerPixel = 3

// Frame is an immutable packed BGR24 image.
// Callers must not modify Pix after construction; use Clone or Annotate to derive new frames.
type Frame struct {
	Width  int
	Height int
	Layout Layout
	Pix    []byte
	Time   time.Time
	Seq    uint64
}

// New wraps pix as a BGR24 frame, validating its length against the dimensions.
func New(width, height int, pix []byte, t time.Time) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if want := Size(width, height); len(pix) != want {
		return nil, fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d", len(pix), want, width, height)
	}
	return &Frame{Width: width, Height: height, Layout: LayoutBGR24, Pix: pix, Time: t}, nil
}

// Size returns the number of bytes a BGR24 frame of the given dimensions occupies.
func Size(width, height int) int {
	return width * height * bytesPerPixel
}

// FromImage converts an image into a BGR24 frame. YCbCr (what cameras
// deliver through mediadevices) and RGBA are converted row by row; other
// image types go through the generic color model.
func FromImage(img image.Image, t time.Time) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{Width: w, Height: h, Layout: LayoutBGR24, Pix: make([]byte, Size(w, h)), Time: t}
	switch src := img.(type) {
	case *image.YCbCr:
		f.fromYCbCr(src)
	case *image.RGBA:
		f.fromRGBA(src)
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				f.Pix[i] = byte(bl >> 8)
				f.Pix[i+1] = byte(g >> 8)
				f.Pix[i+2] = byte(r >> 8)
				i += bytesPerPixel
			}
		}
	}
	return f
}

func (f *Frame) fromYCbCr(src *image.YCbCr) {
	b := src.Rect
	stride := f.Stride()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := f.Pix[(y-b.Min.Y)*stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			yi := src.YOffset(x, y)
			ci := src.COffset(x, y)
			r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			i := (x - b.Min.X) * bytesPerPixel
			row[i], row[i+1], row[i+2] = bl, g, r
		}
	}
}

func (f *Frame) fromRGBA(src *image.RGBA) {
	b := src.Rect
	stride := f.Stride()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		in := src.Pix[src.PixOffset(b.Min.X, y):]
		out := f.Pix[(y-b.Min.Y)*stride : (y-b.Min.Y+1)*stride]
		for i, j := 0, 0; j < len(out); i, j = i+4, j+bytesPerPixel {
			out[j], out[j+1], out[j+2] = in[i+2], in[i+1], in[i]
		}
	}
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * bytesPerPixel
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	c := *f
	c.Pix = pix
	return &c
}

// Gray converts the frame to 8-bit luminance using the ITU-R BT.601 weights.
func (f *Frame) Gray() *image.Gray {
	g := image.NewGray(f.Bounds())
	stride := f.Stride()
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*stride : (y+1)*stride]
		out := g.Pix[y*g.Stride : y*g.Stride+f.Width]
		for x := range out {
			b := uint32(row[x*3])
			gr := uint32(row[x*3+1])
			r := uint32(row[x*3+2])
			// fixed point 0.299 R + 0.587 G + 0.114 B
			out[x] = uint8((19595*r + 38470*gr + 7471*b + 1<<15) >> 16)
		}
	}
	return g
}

// Annotate returns a copy of the frame with rectangle outlines drawn on it.
func (f *Frame) Annotate(rects []image.Rectangle, c color.RGBA, thickness int) *Frame {
	out := f.Clone()
	if thickness < 1 {
		thickness = 1
	}
	bounds := out.Bounds()
	for _, r := range rects {
		r = r.Intersect(bounds)
		if r.Empty() {
			continue
		}
		for t := 0; t < thickness; t++ {
			out.hline(r.Min.X, r.Max.X, r.Min.Y+t, c)
			out.hline(r.Min.X, r.Max.X, r.Max.Y-1-t, c)
			out.vline(r.Min.X+t, r.Min.Y, r.Max.Y, c)
			out.vline(r.Max.X-1-t, r.Min.Y, r.Max.Y, c)
		}
	}
	return out
}

func (f *Frame) set(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := y*f.Stride() + x*bytesPerPixel
	f.Pix[i] = c.B
	f.Pix[i+1] = c.G
	f.Pix[i+2] = c.R
}

func (f *Frame) hline(x0, x1, y int, c color.RGBA) {
	for x := x0; x < x1; x++ {
		f.set(x, y, c)
	}
}

func (f *Frame) vline(x, y0, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		f.set(x, y, c)
	}
}

// RGBA converts the frame into an *image.RGBA.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	stride := f.Stride()
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*stride : (y+1)*stride]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4] = src[x*3+2]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// JPEG encodes the frame as a JPEG image.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
