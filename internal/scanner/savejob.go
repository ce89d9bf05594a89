package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mzyy94/airsane/internal/config"
	"github.com/mzyy94/airsane/internal/sane"
)

// JobSnapshot is a point-in-time copy of a ScanJobStatus.
type JobSnapshot struct {
	Scanning  bool     `json:"scanning"`
	LastError string   `json:"lastError,omitempty"`
	LastScan  string   `json:"lastScan,omitempty"` // RFC3339
	Pages     int      `json:"pages"`
	Files     []string `json:"files,omitempty"`
}

// ScanJobStatus tracks the state of a button-triggered scan job.
type ScanJobStatus struct {
	mu   sync.RWMutex
	last JobSnapshot
}

// Snapshot returns a copy of the current status.
func (s *ScanJobStatus) Snapshot() JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.last
	snap.Files = append([]string(nil), s.last.Files...)
	return snap
}

// SetScanning marks the scan as in-progress.
func (s *ScanJobStatus) SetScanning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last.Scanning = v
	if v {
		s.last.LastError = ""
	}
}

// SetResult records the outcome of a completed scan.
func (s *ScanJobStatus) SetResult(err error, pages int, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = JobSnapshot{
		LastScan: time.Now().UTC().Format(time.RFC3339),
		Pages:    pages,
		Files:    files,
	}
	if err != nil {
		s.last.LastError = err.Error()
	}
}

// SettingsToScanConfig converts stored settings to a ScanConfig. Sources
// are resolved against the device's source choices.
func SettingsToScanConfig(s config.Settings, sources []string) ScanConfig {
	var cfg ScanConfig

	switch s.ColorMode {
	case "color":
		cfg.Mode = ModeColor
	case "grayscale":
		cfg.Mode = ModeGray
	case "bw":
		cfg.Mode = ModeLineart
	}

	cfg.Resolution = s.Resolution

	switch s.Source {
	case "flatbed":
		cfg.Source = pickSource(sources, SourceFlatbed)
	case "adf":
		cfg.Source = pickSource(sources, SourceADF)
		cfg.Batch = true
	case "duplex":
		cfg.Source = pickSource(sources, SourceADFDuplex)
		cfg.Batch = true
	}
	return cfg
}

// Sources returns the choices of the device's source option.
func (s *Scanner) Sources() []string {
	opt, ok := findOption(s.Options(), OptSource)
	if !ok {
		return nil
	}
	sl, _ := opt.Constraint.(sane.StringListConstraint)
	return append([]string(nil), sl...)
}

// RunSaveJob executes a scan and saves the result under savePath. PDF output
// produces one file; image formats produce one file per page.
func RunSaveJob(ctx context.Context, sc *Scanner, cfg ScanConfig, format string, savePath string) ([]string, int, error) {
	if err := os.MkdirAll(savePath, 0755); err != nil {
		return nil, 0, fmt.Errorf("create save directory: %w", err)
	}

	slog.Info("scan job starting", "format", format, "savePath", savePath)
	pages, err := sc.Scan(ctx, cfg, nil)
	if err != nil {
		return nil, len(pages), fmt.Errorf("scan: %w", err)
	}
	if len(pages) == 0 {
		return nil, 0, fmt.Errorf("scan returned no pages")
	}

	timestamp := time.Now().Format("20060102_150405")
	files, err := SavePages(pages, format, savePath, "scan_"+timestamp)
	if err != nil {
		return files, len(pages), err
	}
	slog.Info("scan saved", "path", savePath, "pages", len(pages), "files", len(files))
	return files, len(pages), nil
}

// SavePages writes pages as base.pdf or base_NNN.ext in dir.
func SavePages(pages []Page, format, dir, base string) ([]string, error) {
	if format == "application/pdf" {
		outPath := filepath.Join(dir, base+".pdf")
		if err := WritePDF(pages, outPath); err != nil {
			return nil, fmt.Errorf("write PDF: %w", err)
		}
		return []string{outPath}, nil
	}

	f, ok := FormatFromMediaType(format)
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	var files []string
	for i, p := range pages {
		data, err := EncodePage(p, f)
		if err != nil {
			return files, err
		}
		ext := extensions[f]
		if p.Params.Depth == 1 && ext == "jpg" {
			ext = "png"
		}
		outPath := filepath.Join(dir, fmt.Sprintf("%s_%03d.%s", base, i+1, ext))
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return files, fmt.Errorf("write page %d: %w", i+1, err)
		}
		files = append(files, outPath)
	}
	return files, nil
}
