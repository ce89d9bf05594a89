package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// WritePDF combines scanned pages into a single PDF file.
func WritePDF(pages []Page, outputPath string) error {
	data, err := GeneratePDF(pages)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}

// AppendPDF adds pages to the end of the PDF at outputPath, creating the
// file if it does not exist yet.
func AppendPDF(pages []Page, outputPath string) error {
	if _, err := os.Stat(outputPath); errors.Is(err, fs.ErrNotExist) {
		return WritePDF(pages, outputPath)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".airsane-*.pdf")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	data, err := GeneratePDF(pages)
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := api.MergeAppendFile([]string{tmp.Name()}, outputPath, false, nil); err != nil {
		return fmt.Errorf("append to %s: %w", outputPath, err)
	}
	return nil
}

// GeneratePDF combines scanned pages into a PDF in memory. Each page is
// sized from its pixel dimensions and scan resolution. Lineart pages are
// embedded as 1-bit PNG, everything else as JPEG.
func GeneratePDF(pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to write")
	}

	pdf := fpdf.New("P", "mm", "", "")
	pdf.SetAutoPageBreak(false, 0)

	for i, p := range pages {
		dpi := p.DPI
		if dpi <= 0 {
			dpi = 300
		}
		b := p.Image.Bounds()
		widthMM := float64(b.Dx()) / float64(dpi) * 25.4
		heightMM := float64(b.Dy()) / float64(dpi) * 25.4

		pdf.AddPageFormat("P", fpdf.SizeType{Wd: widthMM, Ht: heightMM})

		format, imageType := imaging.JPEG, "JPEG"
		if p.Params.Depth == 1 {
			format, imageType = imaging.PNG, "PNG"
		}
		data, err := EncodePage(p, format)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("page%d", i)
		pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
		pdf.ImageOptions(name, 0, 0, widthMM, heightMM, false, fpdf.ImageOptions{}, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("generate PDF: %w", err)
	}
	return out.Bytes(), nil
}
