package scanner

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
)

// JPEGQuality is used for every JPEG this package writes.
const JPEGQuality = 90

var mediaTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.TIFF: "image/tiff",
	imaging.BMP:  "image/bmp",
	imaging.GIF:  "image/gif",
}

var extensions = map[imaging.Format]string{
	imaging.JPEG: "jpg",
	imaging.PNG:  "png",
	imaging.TIFF: "tiff",
	imaging.BMP:  "bmp",
	imaging.GIF:  "gif",
}

// MediaType returns the MIME type of an image format.
func MediaType(f imaging.Format) string { return mediaTypes[f] }

// FormatFromMediaType is the inverse of MediaType.
func FormatFromMediaType(mt string) (imaging.Format, bool) {
	for f, m := range mediaTypes {
		if m == mt {
			return f, true
		}
	}
	return 0, false
}

// EncodeImage writes img in format f. Bilevel images are written as 1-bit
// paletted PNG and TIFF files are deflate-compressed.
func EncodeImage(w io.Writer, img image.Image, f imaging.Format, bilevel bool) error {
	if bilevel {
		img = toBitonal(img)
	}
	switch f {
	case imaging.TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case imaging.JPEG:
		if bilevel {
			return fmt.Errorf("bilevel image cannot be written as JPEG")
		}
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	}
	return imaging.Encode(w, img, f)
}

// EncodePage encodes a scanned page in format f.
func EncodePage(p Page, f imaging.Format) ([]byte, error) {
	bilevel := p.Params.Depth == 1
	if bilevel && f == imaging.JPEG {
		f = imaging.PNG
	}
	var buf bytes.Buffer
	if err := EncodeImage(&buf, p.Image, f, bilevel); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", p.Index+1, err)
	}
	return buf.Bytes(), nil
}

// toBitonal converts an image to a 1-bit paletted image (black & white).
func toBitonal(img image.Image) *image.Paletted {
	bounds := img.Bounds()
	dst := image.NewPaletted(bounds, color.Palette{color.White, color.Black})

	// Fast path: lineart frames decode to *image.Gray.
	if gray, ok := img.(*image.Gray); ok {
		w := bounds.Dx()
		for y := range bounds.Dy() {
			srcRow := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w]
			for x, v := range srcRow {
				if v < 128 {
					dstRow[x] = 1
				}
			}
		}
		return dst
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r < 0x8000 {
				dst.SetColorIndex(x, y, 1)
			}
		}
	}
	return dst
}
