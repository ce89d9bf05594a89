package scanner

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mzyy94/airsane/internal/sane"
)

// Well-known option names (see sane-backends saneopts.h).
const (
	OptSource     = "source"
	OptMode       = "mode"
	OptResolution = "resolution"
	OptTopLeftX   = "tl-x"
	OptTopLeftY   = "tl-y"
	OptBottomX    = "br-x"
	OptBottomY    = "br-y"
	OptScanButton = "scan"
)

// Standard values of the mode option.
const (
	ModeColor   = "Color"
	ModeGray    = "Gray"
	ModeLineart = "Lineart"
)

var paperSensorNames = []string{"page-loaded", "adf-loaded", "document-loaded", "paper-in"}

// Region is a scan area in millimeters. The zero Region selects the full area.
type Region struct {
	X, Y          float64
	Width, Height float64
}

// IsZero reports whether r selects the full scan area.
func (r Region) IsZero() bool { return r.Width <= 0 || r.Height <= 0 }

// ScanConfig holds the settings applied before a scan. Zero fields keep the
// device's current value.
type ScanConfig struct {
	Source     string // matched against the source option's choices
	Mode       string // ModeColor, ModeGray or ModeLineart
	Resolution int    // dpi
	Region     Region
	Batch      bool // scan until the feeder is empty
}

// SourceKind classifies a source option choice.
type SourceKind int

const (
	SourceFlatbed SourceKind = iota
	SourceADF
	SourceADFDuplex
)

// ClassifySource guesses the kind of a source choice from its name.
func ClassifySource(name string) SourceKind {
	n := strings.ToLower(name)
	adf := strings.Contains(n, "adf") || strings.Contains(n, "feeder") || strings.Contains(n, "document")
	switch {
	case adf && strings.Contains(n, "duplex"):
		return SourceADFDuplex
	case adf:
		return SourceADF
	}
	return SourceFlatbed
}

// pickSource finds the choice of kind k among the device's sources.
func pickSource(choices []string, k SourceKind) string {
	for _, c := range choices {
		if ClassifySource(c) == k {
			return c
		}
	}
	return ""
}

// matchChoice finds want among choices: exactly, then ignoring case, then
// by prefix. Case is compared with Unicode folding since some backends
// localize their choices.
func matchChoice(choices []string, want string) (string, bool) {
	for _, c := range choices {
		if c == want {
			return c, true
		}
	}
	fold := cases.Fold()
	fw := fold.String(want)
	folded := make([]string, len(choices))
	for i, c := range choices {
		folded[i] = fold.String(c)
		if folded[i] == fw {
			return c, true
		}
	}
	for i, c := range choices {
		if strings.HasPrefix(folded[i], fw) {
			return c, true
		}
	}
	return "", false
}

// nearestWord returns the element of list closest to v.
func nearestWord(list []int32, v int32) int32 {
	best := list[0]
	for _, w := range list[1:] {
		if abs32(w-v) < abs32(best-v) {
			best = w
		}
	}
	return best
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// numberValue builds an Int or Fixed value for opt from f.
func numberValue(opt sane.Option, f float64) (sane.Value, error) {
	switch opt.Type {
	case sane.TypeInt:
		v := int32(math.Round(f))
		if wl, ok := opt.Constraint.(sane.WordListConstraint); ok && len(wl) > 0 {
			v = nearestWord(wl, v)
		}
		return sane.Int(v), nil
	case sane.TypeFixed:
		v := sane.FixedFromFloat(f)
		if wl, ok := opt.Constraint.(sane.WordListConstraint); ok && len(wl) > 0 {
			v = sane.Fixed(nearestWord(wl, int32(v)))
		}
		return v, nil
	}
	return nil, fmt.Errorf("option %s is %s, not a number", opt.Name, opt.Type)
}

// ParseValue converts text into a value for opt.
func ParseValue(opt sane.Option, text string) (sane.Value, error) {
	switch opt.Type {
	case sane.TypeBool:
		switch strings.ToLower(text) {
		case "yes", "on":
			return sane.Bool(true), nil
		case "no", "off":
			return sane.Bool(false), nil
		}
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("option %s: invalid bool %q", opt.Name, text)
		}
		return sane.Bool(b), nil
	case sane.TypeInt:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("option %s: invalid integer %q", opt.Name, text)
		}
		return sane.Int(n), nil
	case sane.TypeFixed:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("option %s: invalid number %q", opt.Name, text)
		}
		return sane.FixedFromFloat(f), nil
	case sane.TypeString:
		if sl, ok := opt.Constraint.(sane.StringListConstraint); ok {
			if c, ok := matchChoice(sl, text); ok {
				return sane.String(c), nil
			}
			return nil, fmt.Errorf("option %s: %q is not one of %s", opt.Name, text, strings.Join(sl, ", "))
		}
		return sane.String(text), nil
	case sane.TypeButton:
		return sane.Button{}, nil
	}
	return nil, fmt.Errorf("option %s of type %s cannot be set", opt.Name, opt.Type)
}

// FormatValue renders v the way ParseValue accepts it.
func FormatValue(v sane.Value) string {
	switch v := v.(type) {
	case sane.Bool:
		if v {
			return "yes"
		}
		return "no"
	case sane.Int:
		return strconv.Itoa(int(v))
	case sane.Fixed:
		return v.String()
	case sane.String:
		return string(v)
	}
	return ""
}

// applyConfig writes cfg to the device. Options the device lacks are
// skipped; the mode option is applied first since it may reload others.
func (s *Scanner) applyConfig(cfg ScanConfig) error {
	set := func(name string, build func(sane.Option) (sane.Value, error)) error {
		opt, ok := s.lookup(name)
		if !ok || !opt.IsActive() || !opt.IsSettable() {
			slog.Debug("skipping scan setting", "option", name)
			return nil
		}
		v, err := build(opt)
		if err != nil {
			return err
		}
		_, err = s.setValue(opt, v)
		return err
	}
	choice := func(want string) func(sane.Option) (sane.Value, error) {
		return func(opt sane.Option) (sane.Value, error) { return ParseValue(opt, want) }
	}
	number := func(f float64) func(sane.Option) (sane.Value, error) {
		return func(opt sane.Option) (sane.Value, error) { return numberValue(opt, f) }
	}

	if cfg.Mode != "" {
		if err := set(OptMode, choice(cfg.Mode)); err != nil {
			return err
		}
	}
	if cfg.Source != "" {
		if err := set(OptSource, choice(cfg.Source)); err != nil {
			return err
		}
	}
	if cfg.Resolution > 0 {
		if err := set(OptResolution, number(float64(cfg.Resolution))); err != nil {
			return err
		}
	}
	if !cfg.Region.IsZero() {
		r := cfg.Region
		for _, o := range []struct {
			name string
			v    float64
		}{
			{OptTopLeftX, r.X},
			{OptTopLeftY, r.Y},
			{OptBottomX, r.X + r.Width},
			{OptBottomY, r.Y + r.Height},
		} {
			if err := set(o.name, number(o.v)); err != nil {
				return err
			}
		}
	}
	return nil
}
