package scanner

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/OpenPrinting/go-mfp/abstract"
	"github.com/OpenPrinting/go-mfp/util/generic"
	"github.com/OpenPrinting/go-mfp/util/uuid"
	"github.com/disintegration/imaging"

	"github.com/mzyy94/airsane/internal/sane"
)

// Default scan area when the device does not report its geometry.
const (
	defaultMaxWidthMM  = 216
	defaultMaxHeightMM = 297
)

// Resolutions offered when the device accepts a continuous range.
var standardResolutions = []int{75, 100, 150, 200, 300, 600, 1200}

// ESCLAdapter implements abstract.Scanner for a SANE device.
type ESCLAdapter struct {
	scanner  *Scanner
	caps     *abstract.ScannerCapabilities
	sources  []string
	adfEmpty atomic.Bool // true after a feeder scan ends
}

// NewESCLAdapter creates an eSCL adapter wrapping the given Scanner.
// The scanner must be connected so its options are known.
func NewESCLAdapter(s *Scanner) *ESCLAdapter {
	a := &ESCLAdapter{scanner: s}
	a.caps = a.buildCapabilities()
	return a
}

func findOption(options []sane.Option, name string) (sane.Option, bool) {
	for _, o := range options {
		if o.Name == name && o.IsActive() {
			return o, true
		}
	}
	return sane.Option{}, false
}

// optionFloat converts a raw constraint word of opt to a float.
func optionFloat(opt sane.Option, w int32) float64 {
	if opt.Type == sane.TypeFixed {
		return sane.Fixed(w).Float64()
	}
	return float64(w)
}

// resolutions lists the dpi values the resolution option accepts.
func resolutions(options []sane.Option) []int {
	opt, ok := findOption(options, OptResolution)
	if !ok {
		return []int{300}
	}
	var out []int
	switch c := opt.Constraint.(type) {
	case sane.WordListConstraint:
		for _, w := range c {
			out = append(out, int(math.Round(optionFloat(opt, w))))
		}
	case sane.RangeConstraint:
		lo, hi := optionFloat(opt, c.Min), optionFloat(opt, c.Max)
		for _, r := range standardResolutions {
			if float64(r) >= lo && float64(r) <= hi {
				out = append(out, r)
			}
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return []int{300}
	}
	return out
}

// maxExtent returns the upper bound of a geometry option in millimeters.
func maxExtent(options []sane.Option, name string, def float64) float64 {
	opt, ok := findOption(options, name)
	if !ok || opt.Unit != sane.UnitMm {
		return def
	}
	if r, ok := opt.Constraint.(sane.RangeConstraint); ok {
		return optionFloat(opt, r.Max)
	}
	return def
}

func mmToDim(mm float64) abstract.Dimension {
	return abstract.Dimension(math.Round(mm * float64(abstract.Millimeter)))
}

func dimToMM(d abstract.Dimension) float64 {
	return float64(d) / float64(abstract.Millimeter)
}

func (a *ESCLAdapter) buildCapabilities() *abstract.ScannerCapabilities {
	options := a.scanner.Options()

	var modes []abstract.ColorMode
	if opt, ok := findOption(options, OptMode); ok {
		if sl, ok := opt.Constraint.(sane.StringListConstraint); ok {
			for _, m := range sl {
				switch {
				case strings.EqualFold(m, ModeColor):
					modes = append(modes, abstract.ColorModeColor)
				case strings.EqualFold(m, ModeGray):
					modes = append(modes, abstract.ColorModeMono)
				case strings.EqualFold(m, ModeLineart):
					modes = append(modes, abstract.ColorModeBinary)
				}
			}
		}
	}
	if len(modes) == 0 {
		modes = []abstract.ColorMode{abstract.ColorModeColor}
	}

	dpis := resolutions(options)
	var res []abstract.Resolution
	for _, d := range dpis {
		res = append(res, abstract.Resolution{XResolution: d, YResolution: d})
	}
	profile := abstract.SettingsProfile{
		ColorModes:       generic.MakeBitset(modes...),
		Depths:           generic.MakeBitset(abstract.ColorDepth8),
		BinaryRenderings: generic.MakeBitset(abstract.BinaryRenderingThreshold),
		Resolutions:      res,
	}

	input := &abstract.InputCapabilities{
		MinWidth:              10 * abstract.Millimeter,
		MaxWidth:              mmToDim(maxExtent(options, OptBottomX, defaultMaxWidthMM)),
		MinHeight:             10 * abstract.Millimeter,
		MaxHeight:             mmToDim(maxExtent(options, OptBottomY, defaultMaxHeightMM)),
		MaxOpticalXResolution: dpis[len(dpis)-1],
		MaxOpticalYResolution: dpis[len(dpis)-1],
		Intents: generic.MakeBitset(
			abstract.IntentDocument,
			abstract.IntentPhoto,
			abstract.IntentTextAndGraphic,
		),
		Profiles: []abstract.SettingsProfile{profile},
	}

	caps := &abstract.ScannerCapabilities{
		UUID:            uuid.SHA1(uuid.NameSpaceDNS, "airsane."+a.scanner.Device().Name),
		MakeAndModel:    a.scanner.Name(),
		Manufacturer:    a.scanner.Device().Vendor,
		SerialNumber:    a.scanner.Device().Name,
		DocumentFormats: []string{"image/jpeg", "image/png", "application/pdf"},
	}

	if opt, ok := findOption(options, OptSource); ok {
		if sl, ok := opt.Constraint.(sane.StringListConstraint); ok {
			a.sources = append([]string(nil), sl...)
		}
	}
	if len(a.sources) == 0 {
		caps.Platen = input
		return caps
	}
	for _, src := range a.sources {
		switch ClassifySource(src) {
		case SourceFlatbed:
			caps.Platen = input
		case SourceADF:
			caps.ADFSimplex = input
			caps.ADFCapacity = 50
		case SourceADFDuplex:
			caps.ADFDuplex = input
			caps.ADFCapacity = 50
		}
	}
	return caps
}

// Capabilities returns the scanner capabilities.
func (a *ESCLAdapter) Capabilities() *abstract.ScannerCapabilities {
	return a.caps
}

// Scan converts an eSCL request to SANE options and executes the scan.
func (a *ESCLAdapter) Scan(ctx context.Context, req abstract.ScannerRequest) (abstract.Document, error) {
	if err := req.Validate(a.caps); err != nil {
		return nil, err
	}

	cfg := a.mapScanConfig(req)
	slog.Info("scan requested",
		"colorMode", req.ColorMode,
		"resolution", req.Resolution,
		"adfMode", req.ADFMode,
		"source", cfg.Source,
		"format", req.DocumentFormat,
	)

	pages, err := a.scanner.Scan(ctx, cfg, nil)
	if cfg.Batch {
		a.adfEmpty.Store(true)
	}
	if err != nil {
		return nil, err
	}

	res := req.Resolution
	if res.IsZero() && len(pages) > 0 && pages[0].DPI > 0 {
		res = abstract.Resolution{XResolution: pages[0].DPI, YResolution: pages[0].DPI}
	}
	doc := &pageDocument{res: res}

	if req.DocumentFormat == "application/pdf" {
		data, err := GeneratePDF(pages)
		if err != nil {
			return nil, err
		}
		doc.files = append(doc.files, encodedFile{format: "application/pdf", data: data})
		return doc, nil
	}

	format := imaging.JPEG
	if req.DocumentFormat == "image/png" {
		format = imaging.PNG
	}
	for _, p := range pages {
		f := format
		if p.Params.Depth == 1 {
			f = imaging.PNG
		}
		data, err := EncodePage(p, f)
		if err != nil {
			return nil, err
		}
		doc.files = append(doc.files, encodedFile{format: MediaType(f), data: data})
	}
	return doc, nil
}

// CheckADFStatus queries the scanner for paper presence.
// On error, falls back to cached state from the last feeder scan.
func (a *ESCLAdapter) CheckADFStatus() (bool, error) {
	hasPaper, err := a.scanner.CheckADFStatus()
	if err != nil {
		if a.adfEmpty.Load() {
			slog.Warn("ADF status check failed, using cached state (empty)", "err", err)
			return false, nil
		}
		return false, err
	}
	a.adfEmpty.Store(!hasPaper)
	return hasPaper, nil
}

// TXTRecords returns the DNS-SD TXT records advertising the adapter as an
// _uscan._tcp service named name.
func (a *ESCLAdapter) TXTRecords(name string) []string {
	var cs []string
	if opt, ok := findOption(a.scanner.Options(), OptMode); ok {
		sl, _ := opt.Constraint.(sane.StringListConstraint)
		for _, m := range sl {
			switch {
			case strings.EqualFold(m, ModeColor):
				cs = append(cs, "color")
			case strings.EqualFold(m, ModeGray):
				cs = append(cs, "grayscale")
			case strings.EqualFold(m, ModeLineart):
				cs = append(cs, "binary")
			}
		}
	}
	if len(cs) == 0 {
		cs = []string{"color"}
	}

	var is []string
	if a.caps.Platen != nil {
		is = append(is, "platen")
	}
	if a.caps.ADFSimplex != nil || a.caps.ADFDuplex != nil {
		is = append(is, "adf")
	}
	duplex := "F"
	if a.caps.ADFDuplex != nil {
		duplex = "T"
	}

	return []string{
		"txtvers=1",
		"ty=" + name,
		"pdl=" + strings.Join(a.caps.DocumentFormats, ","),
		"cs=" + strings.Join(cs, ","),
		"is=" + strings.Join(is, ","),
		"duplex=" + duplex,
		"uuid=" + a.caps.UUID.String(),
		"rs=eSCL",
	}
}

// Close closes the scanner connection.
func (a *ESCLAdapter) Close() error {
	a.scanner.Disconnect()
	return nil
}

// mapScanConfig converts an eSCL ScannerRequest to a ScanConfig.
func (a *ESCLAdapter) mapScanConfig(req abstract.ScannerRequest) ScanConfig {
	var cfg ScanConfig

	switch req.ColorMode {
	case abstract.ColorModeColor:
		cfg.Mode = ModeColor
	case abstract.ColorModeMono:
		cfg.Mode = ModeGray
	case abstract.ColorModeBinary:
		cfg.Mode = ModeLineart
	}

	cfg.Resolution = req.Resolution.XResolution

	switch {
	case req.ADFMode == abstract.ADFModeDuplex:
		cfg.Source = pickSource(a.sources, SourceADFDuplex)
		cfg.Batch = true
	case req.ADFMode == abstract.ADFModeSimplex || req.Input == abstract.InputADF:
		cfg.Source = pickSource(a.sources, SourceADF)
		cfg.Batch = true
	case req.Input == abstract.InputPlaten:
		cfg.Source = pickSource(a.sources, SourceFlatbed)
	}

	// A region covering the whole input area is left to the device.
	if req.Region.Width > 0 && req.Region.Height > 0 {
		input := a.caps.Platen
		if cfg.Batch {
			input = a.caps.ADFSimplex
			if input == nil {
				input = a.caps.ADFDuplex
			}
		}
		if input == nil || req.Region.Width < input.MaxWidth || req.Region.Height < input.MaxHeight {
			cfg.Region = Region{
				X:      dimToMM(req.Region.XOffset),
				Y:      dimToMM(req.Region.YOffset),
				Width:  dimToMM(req.Region.Width),
				Height: dimToMM(req.Region.Height),
			}
		}
	}
	return cfg
}

// pageDocument wraps encoded pages as an abstract.Document.
type pageDocument struct {
	res   abstract.Resolution
	files []encodedFile
	idx   int
}

type encodedFile struct {
	format string
	data   []byte
}

func (d *pageDocument) Resolution() abstract.Resolution { return d.res }

func (d *pageDocument) Next() (abstract.DocumentFile, error) {
	if d.idx >= len(d.files) {
		return nil, io.EOF
	}
	f := d.files[d.idx]
	d.idx++
	return &pageFile{Reader: bytes.NewReader(f.data), format: f.format}, nil
}

func (d *pageDocument) Close() error { return nil }

// pageFile is a single encoded page.
type pageFile struct {
	*bytes.Reader
	format string
}

func (f *pageFile) Format() string { return f.format }
