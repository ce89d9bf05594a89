package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mzyy94/airsane/internal/frame"
	"github.com/mzyy94/airsane/internal/sane"
)

// ErrNotConnected is returned by operations that need an open device.
var ErrNotConnected = errors.New("scanner not connected")

// ErrNoOption is returned when the device has no option of the requested name.
var ErrNoOption = errors.New("no such option")

// Page holds one scanned page.
type Page struct {
	Index  int // 0-based
	Image  image.Image
	Params sane.Parameters
	DPI    int
}

// Scanner is a high-level interface to a single SANE device.
// It serializes access to the device; the underlying library is not thread-safe.
// Connected, Scanning and Options do not wait for a running scan.
type Scanner struct {
	mu      sync.Mutex
	ctx     *sane.Context
	device  sane.Device
	handle  *sane.Handle
	options []sane.Option

	connected atomic.Bool
	scanning  atomic.Bool
	published atomic.Pointer[[]sane.Option]
}

// New creates a Scanner for dev. Call Connect before use.
func New(ctx *sane.Context, dev sane.Device) *Scanner {
	return &Scanner{ctx: ctx, device: dev}
}

// Resolve finds a device by exact name, falling back to a substring match
// over the device list. An empty name selects the first device.
func Resolve(ctx *sane.Context, name string) (sane.Device, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return sane.Device{}, fmt.Errorf("list devices: %w", err)
	}
	return Match(devices, name)
}

// Match picks name out of devices the same way Resolve does.
func Match(devices []sane.Device, name string) (sane.Device, error) {
	if len(devices) == 0 {
		if name != "" {
			// Network backends may open devices they do not list.
			return sane.Device{Name: name}, nil
		}
		return sane.Device{}, fmt.Errorf("no devices found")
	}
	if name == "" {
		return devices[0], nil
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(d.Name, name) {
			return d, nil
		}
	}
	return sane.Device{Name: name}, nil
}

// Connect opens the device and reads its option table.
func (s *Scanner) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("opening scanner", "device", s.device.Name)
	h, err := s.ctx.Open(s.device)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.device.Name, err)
	}
	options, err := h.Options()
	if err != nil {
		h.Close()
		return fmt.Errorf("read options: %w", err)
	}
	s.handle = h
	s.setOptions(options)
	s.connected.Store(true)
	slog.Info("connected to scanner", "device", s.device.Name, "vendor", s.device.Vendor, "model", s.device.Model, "options", len(options))
	return nil
}

// Disconnect cancels any scan and closes the device.
func (s *Scanner) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return
	}
	s.handle.Close()
	s.handle = nil
	s.setOptions(nil)
	s.connected.Store(false)
	slog.Info("disconnected from scanner", "device", s.device.Name)
}

// Connected returns whether the device is open.
func (s *Scanner) Connected() bool { return s.connected.Load() }

// Scanning returns whether Scan is running.
func (s *Scanner) Scanning() bool { return s.scanning.Load() }

// Device returns the device record.
func (s *Scanner) Device() sane.Device { return s.device }

// Name returns a display name for the device.
func (s *Scanner) Name() string {
	name := strings.TrimSpace(s.device.Vendor + " " + s.device.Model)
	if name == "" {
		return s.device.Name
	}
	return name
}

// Options returns a copy of the current option table.
func (s *Scanner) Options() []sane.Option {
	p := s.published.Load()
	if p == nil {
		return nil
	}
	return append([]sane.Option(nil), (*p)...)
}

// setOptions replaces the option table. s.mu must be held.
func (s *Scanner) setOptions(options []sane.Option) {
	s.options = options
	s.published.Store(&options)
}

func (s *Scanner) lookup(name string) (sane.Option, bool) {
	for _, o := range s.options {
		if o.Name == name {
			return o, true
		}
	}
	return sane.Option{}, false
}

// Get reads the current value of the named option.
func (s *Scanner) Get(name string) (sane.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, ErrNotConnected
	}
	opt, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOption, name)
	}
	if !opt.HasValue() {
		return nil, fmt.Errorf("option %s of type %s has no value", name, opt.Type)
	}
	if !opt.IsActive() {
		return nil, fmt.Errorf("option %s is inactive", name)
	}
	return s.handle.Option(opt)
}

// Set assigns a value given in text form to the named option. The text
// "auto" asks the backend to choose the value.
func (s *Scanner) Set(name, text string) (sane.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return 0, ErrNotConnected
	}
	opt, ok := s.lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoOption, name)
	}
	if strings.EqualFold(text, "auto") && opt.IsAutomatic() {
		info, err := s.handle.SetOptionAuto(opt)
		if err != nil {
			return 0, fmt.Errorf("set %s=auto: %w", name, err)
		}
		return info, s.reloadIfNeeded(info)
	}
	v, err := ParseValue(opt, text)
	if err != nil {
		return 0, err
	}
	return s.setValue(opt, v)
}

// SetValue assigns v to the named option.
func (s *Scanner) SetValue(name string, v sane.Value) (sane.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return 0, ErrNotConnected
	}
	opt, ok := s.lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoOption, name)
	}
	if v.Type() != opt.Type {
		return 0, fmt.Errorf("option %s is %s, got %s", name, opt.Type, v.Type())
	}
	return s.setValue(opt, v)
}

func (s *Scanner) setValue(opt sane.Option, v sane.Value) (sane.Info, error) {
	if !opt.IsSettable() {
		return 0, fmt.Errorf("option %s is not settable", opt.Name)
	}
	info, err := s.handle.SetOption(opt, v)
	if err != nil {
		return 0, fmt.Errorf("set %s=%v: %w", opt.Name, v, err)
	}
	if info.Has(sane.InfoInexact) {
		slog.Debug("option value rounded", "option", opt.Name, "requested", v)
	}
	return info, s.reloadIfNeeded(info)
}

func (s *Scanner) reloadIfNeeded(info sane.Info) error {
	if !info.Has(sane.InfoReloadOptions) {
		return nil
	}
	options, err := s.handle.Options()
	if err != nil {
		return fmt.Errorf("reload options: %w", err)
	}
	s.setOptions(options)
	return nil
}

// Scan applies cfg and acquires pages. With cfg.Batch set it keeps
// scanning until the feeder runs out of paper; otherwise it returns after
// one page. onPage, if non-nil, is called for each page as it arrives.
func (s *Scanner) Scan(ctx context.Context, cfg ScanConfig, onPage func(Page)) ([]Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, ErrNotConnected
	}

	s.scanning.Store(true)
	defer s.scanning.Store(false)

	start := time.Now()
	pages, err := s.scan(ctx, cfg, onPage)
	observeScan(pages, err, time.Since(start))
	return pages, err
}

func (s *Scanner) scan(ctx context.Context, cfg ScanConfig, onPage func(Page)) ([]Page, error) {
	if err := s.applyConfig(cfg); err != nil {
		return nil, err
	}
	dpi := s.currentResolution()
	if dpi == 0 {
		dpi = cfg.Resolution
	}

	var pages []Page
	for {
		if err := ctx.Err(); err != nil {
			s.handle.Cancel()
			return pages, err
		}
		passes, err := frame.Acquire(s.handle)
		if err != nil {
			s.handle.Cancel()
			if errors.Is(err, sane.ErrNoDocs) && len(pages) > 0 {
				break
			}
			return pages, fmt.Errorf("scan page %d: %w", len(pages)+1, err)
		}
		img, err := frame.Merge(passes)
		if err != nil {
			return pages, fmt.Errorf("decode page %d: %w", len(pages)+1, err)
		}
		page := Page{Index: len(pages), Image: img, Params: passes[len(passes)-1].Params, DPI: dpi}
		for _, p := range passes {
			bytesRead.Add(float64(len(p.Data)))
		}
		slog.Info("page scanned", "page", page.Index+1, "width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "dpi", dpi)
		pages = append(pages, page)
		if onPage != nil {
			onPage(page)
		}
		if !cfg.Batch {
			break
		}
	}
	return pages, nil
}

func (s *Scanner) currentResolution() int {
	opt, ok := s.lookup(OptResolution)
	if !ok || !opt.IsActive() {
		return 0
	}
	v, err := s.handle.Option(opt)
	if err != nil {
		return 0
	}
	switch v := v.(type) {
	case sane.Int:
		return int(v)
	case sane.Fixed:
		return int(v.Float64() + 0.5)
	}
	return 0
}

// CheckADFStatus reads the paper sensor of the feeder.
func (s *Scanner) CheckADFStatus() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return false, ErrNotConnected
	}
	for _, name := range paperSensorNames {
		opt, ok := s.lookup(name)
		if !ok || opt.Type != sane.TypeBool || !opt.IsActive() {
			continue
		}
		v, err := s.handle.Option(opt)
		if err != nil {
			return false, err
		}
		return bool(v.(sane.Bool)), nil
	}
	return false, fmt.Errorf("%w: no paper sensor", ErrNoOption)
}
