// Package frame turns raw SANE frames into images.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/mzyy94/airsane/internal/sane"
)

// ErrUnsupported is returned for frame formats and depths that cannot be decoded.
var ErrUnsupported = errors.New("frame: unsupported format")

// Pass is one frame of a scan together with its parameters.
type Pass struct {
	Params sane.Parameters
	Data   []byte
}

// Source is the part of a sane.Handle needed to acquire frames.
type Source interface {
	Start() (sane.Parameters, error)
	ReadAll() ([]byte, error)
}

// Acquire runs one scan: it starts and reads frames until the backend marks
// one as the last. Single-pass devices produce one Pass, three-pass color
// devices produce a red, a green and a blue Pass.
func Acquire(src Source) ([]Pass, error) {
	var passes []Pass
	for {
		p, err := src.Start()
		if err != nil {
			return passes, err
		}
		data, err := src.ReadAll()
		if err != nil {
			return passes, fmt.Errorf("read %s frame: %w", p.Format, err)
		}
		slog.Debug("frame acquired", "format", p.Format, "bytes", len(data), "last", p.LastFrame)
		passes = append(passes, Pass{Params: p, Data: data})
		if p.LastFrame {
			return passes, nil
		}
		if len(passes) >= 3 {
			return passes, fmt.Errorf("%w: more than three frames", ErrUnsupported)
		}
	}
}

// lines returns the number of complete lines in data.
func lines(p sane.Parameters, data []byte) int {
	if p.BytesPerLine <= 0 {
		return 0
	}
	n := len(data) / int(p.BytesPerLine)
	if p.Lines > 0 {
		n = min(n, int(p.Lines))
	}
	return n
}

// lineBytes is the minimal line length of a frame, or 0 when the format is not decodable.
func lineBytes(p sane.Parameters) int {
	w := int(p.PixelsPerLine)
	samples := 1
	if p.Format == sane.FrameRGB {
		samples = 3
	}
	switch p.Depth {
	case 1:
		return (w*samples + 7) / 8
	case 8:
		return w * samples
	case 16:
		return 2 * w * samples
	}
	return 0
}

// Decode converts a single gray or RGB frame into an image.
// Sixteen-bit samples are in host byte order.
func Decode(p sane.Parameters, data []byte) (image.Image, error) {
	w, h := int(p.PixelsPerLine), lines(p, data)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("frame: empty image (%dx%d)", w, h)
	}
	stride := int(p.BytesPerLine)
	if need := lineBytes(p); need > 0 && stride < need {
		return nil, fmt.Errorf("frame: %d bytes per line, need %d", stride, need)
	}
	rect := image.Rect(0, 0, w, h)

	switch {
	case p.Format == sane.FrameGray && p.Depth == 1:
		img := image.NewGray(rect)
		for y := range h {
			row := data[y*stride:]
			for x := range w {
				if row[x/8]&(0x80>>(x%8)) == 0 {
					img.Pix[y*img.Stride+x] = 0xff
				}
			}
		}
		return img, nil

	case p.Format == sane.FrameGray && p.Depth == 8:
		img := image.NewGray(rect)
		for y := range h {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], data[y*stride:])
		}
		return img, nil

	case p.Format == sane.FrameGray && p.Depth == 16:
		img := image.NewGray16(rect)
		for y := range h {
			row := data[y*stride:]
			for x := range w {
				img.SetGray16(x, y, color.Gray16{Y: binary.NativeEndian.Uint16(row[2*x:])})
			}
		}
		return img, nil

	case p.Format == sane.FrameRGB && p.Depth == 8:
		img := image.NewNRGBA(rect)
		for y := range h {
			row := data[y*stride:]
			for x := range w {
				o := y*img.Stride + 4*x
				copy(img.Pix[o:o+3], row[3*x:3*x+3])
				img.Pix[o+3] = 0xff
			}
		}
		return img, nil

	case p.Format == sane.FrameRGB && p.Depth == 16:
		img := image.NewNRGBA64(rect)
		for y := range h {
			row := data[y*stride:]
			for x := range w {
				img.SetNRGBA64(x, y, color.NRGBA64{
					R: binary.NativeEndian.Uint16(row[6*x:]),
					G: binary.NativeEndian.Uint16(row[6*x+2:]),
					B: binary.NativeEndian.Uint16(row[6*x+4:]),
					A: 0xffff,
				})
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s frame, depth %d", ErrUnsupported, p.Format, p.Depth)
}

// Merge builds one image from the passes returned by Acquire.
func Merge(passes []Pass) (image.Image, error) {
	switch len(passes) {
	case 0:
		return nil, errors.New("frame: no data")
	case 1:
		return Decode(passes[0].Params, passes[0].Data)
	}

	var channels [3]image.Image
	for _, pass := range passes {
		var c int
		switch pass.Params.Format {
		case sane.FrameRed:
			c = 0
		case sane.FrameGreen:
			c = 1
		case sane.FrameBlue:
			c = 2
		default:
			return nil, fmt.Errorf("%w: %s frame in a multi-pass scan", ErrUnsupported, pass.Params.Format)
		}
		gray := pass.Params
		gray.Format = sane.FrameGray
		img, err := Decode(gray, pass.Data)
		if err != nil {
			return nil, err
		}
		channels[c] = img
	}
	for c, img := range channels {
		if img == nil {
			return nil, fmt.Errorf("frame: missing channel %d", c)
		}
	}

	b := channels[0].Bounds().Intersect(channels[1].Bounds()).Intersect(channels[2].Bounds())
	img := image.NewNRGBA64(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r := color.Gray16Model.Convert(channels[0].At(x, y)).(color.Gray16).Y
			g := color.Gray16Model.Convert(channels[1].At(x, y)).(color.Gray16).Y
			bl := color.Gray16Model.Convert(channels[2].At(x, y)).(color.Gray16).Y
			img.SetNRGBA64(x, y, color.NRGBA64{R: r, G: g, B: bl, A: 0xffff})
		}
	}
	return img, nil
}
