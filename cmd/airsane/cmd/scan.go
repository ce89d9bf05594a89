package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/mzyy94/airsane/internal/scanner"
)

var scanFlags struct {
	output     string
	mode       string
	source     string
	resolution int
	region     scanner.Region
	batch      bool
	appendPDF  bool
	set        []string
}

var scanCmd = &cobra.Command{
	Use:   "scan [device]",
	Short: "Scan to a file",
	Long: `Scan one page, or every page in the feeder with --batch, and write the
result to --output. The file extension picks the format: .pdf writes a
single multi-page document, image formats write one file per page
(name_001.png, name_002.png, ...) when more than one page was scanned.

Backend options not covered by a flag can be set with --set name=value.
A value of "auto" asks the backend to choose.

Examples:
  airsane scan -o page.png --mode Gray --resolution 300
  airsane scan -o letters.pdf --source ADF --batch
  airsane scan -o letters.pdf --append
  airsane scan -o photo.jpg -x 100 -y 150 --set brightness=10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	flags := scanCmd.Flags()
	flags.StringVarP(&scanFlags.output, "output", "o", "scan.png", "output file (.png, .jpg, .tiff, .bmp, .gif or .pdf)")
	flags.StringVar(&scanFlags.mode, "mode", "", "scan mode, e.g. Color, Gray, Lineart")
	flags.StringVar(&scanFlags.source, "source", "", "scan source, e.g. Flatbed, ADF")
	flags.IntVar(&scanFlags.resolution, "resolution", 0, "resolution in dpi")
	flags.Float64VarP(&scanFlags.region.X, "left", "l", 0, "left edge of the scan area in mm")
	flags.Float64VarP(&scanFlags.region.Y, "top", "t", 0, "top edge of the scan area in mm")
	flags.Float64VarP(&scanFlags.region.Width, "width", "x", 0, "width of the scan area in mm")
	flags.Float64VarP(&scanFlags.region.Height, "height", "y", 0, "height of the scan area in mm")
	flags.BoolVarP(&scanFlags.batch, "batch", "b", false, "scan until the feeder is empty")
	flags.BoolVar(&scanFlags.appendPDF, "append", false, "append to an existing PDF instead of replacing it")
	flags.StringArrayVar(&scanFlags.set, "set", nil, "set a backend option (name=value), may be repeated")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	isPDF := strings.EqualFold(filepath.Ext(scanFlags.output), ".pdf")
	var format imaging.Format
	if !isPDF {
		f, err := imaging.FormatFromFilename(scanFlags.output)
		if err != nil {
			return fmt.Errorf("output %s: %w", scanFlags.output, err)
		}
		format = f
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sctx, err := openSANE()
	if err != nil {
		return err
	}
	defer sctx.Close()

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	sc, err := connectScanner(cmd, sctx, name)
	if err != nil {
		return err
	}
	defer sc.Disconnect()

	for _, kv := range scanFlags.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--set %q: expected name=value", kv)
		}
		info, err := sc.Set(key, value)
		if err != nil {
			return fmt.Errorf("--set %s: %w", key, err)
		}
		slog.Debug("option set", "option", key, "value", value, "info", info)
	}

	cfg := scanner.ScanConfig{
		Mode:       scanFlags.mode,
		Source:     scanFlags.source,
		Resolution: scanFlags.resolution,
		Region:     scanFlags.region,
		Batch:      scanFlags.batch,
	}
	pages, err := sc.Scan(ctx, cfg, func(p scanner.Page) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Scanned page %d (%dx%d, %d dpi)\n",
			p.Index+1, p.Image.Bounds().Dx(), p.Image.Bounds().Dy(), p.DPI)
	})
	if err != nil && len(pages) == 0 {
		return err
	}
	if err != nil {
		slog.Warn("scan stopped early, saving scanned pages", "pages", len(pages), "err", err)
	}

	var files []string
	var werr error
	if isPDF && scanFlags.appendPDF {
		files, werr = []string{scanFlags.output}, scanner.AppendPDF(pages, scanFlags.output)
	} else {
		files, werr = writePages(pages, isPDF, format, scanFlags.output)
	}
	if werr != nil {
		return werr
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return err
}

func writePages(pages []scanner.Page, isPDF bool, format imaging.Format, output string) ([]string, error) {
	if isPDF {
		if err := scanner.WritePDF(pages, output); err != nil {
			return nil, err
		}
		return []string{output}, nil
	}

	if len(pages) > 1 {
		dir := filepath.Dir(output)
		base := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
		return scanner.SavePages(pages, scanner.MediaType(format), dir, base)
	}

	p := pages[0]
	data, err := scanner.EncodePage(p, format)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", output, err)
	}
	// Lineart pages cannot be JPEG and are written as PNG next to output.
	if p.Params.Depth == 1 && format == imaging.JPEG {
		slog.Warn("lineart page saved as PNG", "output", output)
		output = strings.TrimSuffix(output, filepath.Ext(output)) + ".png"
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		os.Remove(output)
		return nil, err
	}
	return []string{output}, nil
}
