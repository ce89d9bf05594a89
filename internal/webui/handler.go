package webui

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/OpenPrinting/go-mfp/abstract"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mzyy94/airsane/internal/config"
	"github.com/mzyy94/airsane/internal/sane"
	"github.com/mzyy94/airsane/internal/scanner"
)

//go:embed static
var staticFS embed.FS

// ErrBusy is returned by a ScanFunc when a job is already running.
var ErrBusy = errors.New("scan already in progress")

// ScanFunc starts a save job in the background.
type ScanFunc func() error

// Options configures the Web UI handler.
type Options struct {
	Scanner    *scanner.Scanner
	Adapter    *scanner.ESCLAdapter
	Settings   *config.Store
	Job        *scanner.ScanJobStatus
	StartScan  ScanFunc // nil disables POST /api/scan
	ListenPort int
}

type handler struct {
	Options
}

// NewHandler creates an HTTP handler for the Web UI.
func NewHandler(opts Options) http.Handler {
	if opts.Settings == nil {
		opts.Settings = config.NewMemoryStore()
	}
	if opts.Job == nil {
		opts.Job = &scanner.ScanJobStatus{}
	}
	h := &handler{Options: opts}
	mux := http.NewServeMux()
	staticContent, _ := fs.Sub(staticFS, "static")
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/events", h.handleEvents)
	mux.HandleFunc("GET /api/options", h.handleOptions)
	mux.HandleFunc("GET /api/settings", h.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", h.handlePutSettings)
	mux.HandleFunc("GET /api/scan", h.handleScanStatus)
	mux.HandleFunc("POST /api/scan", h.handleStartScan)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /", http.FileServer(http.FS(staticContent)))
	return mux
}

// LocalIP returns the address of the interface used for outbound multicast.
func LocalIP() string {
	conn, err := net.Dial("udp4", "224.0.0.1:80")
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

type statusResponse struct {
	Online    bool                `json:"online"`
	State     string              `json:"state"`
	ADF       *adfStatus          `json:"adf,omitempty"`
	Device    deviceInfo          `json:"device"`
	Caps      capsInfo            `json:"capabilities"`
	Job       scanner.JobSnapshot `json:"job"`
	ESCLUrl   string              `json:"esclUrl"`
	UpdatedAt string              `json:"updatedAt"`
}

type adfStatus struct {
	Loaded bool `json:"loaded"`
}

type deviceInfo struct {
	Name   string `json:"name"`
	Device string `json:"device"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
	Type   string `json:"type"`
}

type capsInfo struct {
	Resolutions []int    `json:"resolutions"`
	ColorModes  []string `json:"colorModes"`
	Sources     []string `json:"sources"`
	Duplex      bool     `json:"duplex"`
	Formats     []string `json:"formats"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.status())
}

func (h *handler) status() statusResponse {
	online := h.Scanner.Connected()
	state := "idle"
	switch {
	case !online:
		state = "offline"
	case h.Scanner.Scanning():
		state = "scanning"
	}

	dev := h.Scanner.Device()
	resp := statusResponse{
		Online: online,
		State:  state,
		Device: deviceInfo{
			Name:   h.Scanner.Name(),
			Device: dev.Name,
			Vendor: dev.Vendor,
			Model:  dev.Model,
			Type:   dev.Type,
		},
		Job:       h.Job.Snapshot(),
		ESCLUrl:   fmt.Sprintf("http://%s/eSCL", net.JoinHostPort(LocalIP(), fmt.Sprint(h.ListenPort))),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if online && state == "idle" && h.Adapter != nil {
		if hasPaper, err := h.Adapter.CheckADFStatus(); err == nil {
			resp.ADF = &adfStatus{Loaded: hasPaper}
		}
	}

	if h.Adapter != nil {
		caps := h.Adapter.Capabilities()
		resp.Caps = capsInfo{
			Duplex:  caps.ADFDuplex != nil,
			Formats: caps.DocumentFormats,
			Sources: h.Scanner.Sources(),
		}
		if in := firstInput(caps.Platen, caps.ADFSimplex, caps.ADFDuplex); in != nil && len(in.Profiles) > 0 {
			for _, res := range in.Profiles[0].Resolutions {
				resp.Caps.Resolutions = append(resp.Caps.Resolutions, res.XResolution)
			}
		}
		resp.Caps.ColorModes = h.colorModes()
	}
	return resp
}

func firstInput(inputs ...*abstract.InputCapabilities) *abstract.InputCapabilities {
	for _, in := range inputs {
		if in != nil {
			return in
		}
	}
	return nil
}

// colorModes lists the device modes in settings terms.
func (h *handler) colorModes() []string {
	var out []string
	for _, opt := range h.Scanner.Options() {
		if opt.Name != scanner.OptMode {
			continue
		}
		choices, _ := opt.Constraint.(sane.StringListConstraint)
		for _, c := range choices {
			switch {
			case strings.EqualFold(c, scanner.ModeColor):
				out = append(out, "color")
			case strings.EqualFold(c, scanner.ModeGray):
				out = append(out, "grayscale")
			case strings.EqualFold(c, scanner.ModeLineart):
				out = append(out, "bw")
			}
		}
	}
	return out
}

type optionInfo struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Desc     string   `json:"desc,omitempty"`
	Type     string   `json:"type"`
	Unit     string   `json:"unit,omitempty"`
	Cap      string   `json:"cap"`
	Value    string   `json:"value,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Quant    *float64 `json:"quant,omitempty"`
	Choices  []string `json:"choices,omitempty"`
	Active   bool     `json:"active"`
	Settable bool     `json:"settable"`
	Group    bool     `json:"group,omitempty"`
}

func numberText(opt sane.Option, w int32) string {
	if opt.Type == sane.TypeFixed {
		return sane.Fixed(w).String()
	}
	return fmt.Sprint(w)
}

func (h *handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	if !h.Scanner.Connected() {
		http.Error(w, "scanner offline", http.StatusServiceUnavailable)
		return
	}
	// Values are left out while a scan holds the device.
	scanning := h.Scanner.Scanning()
	var out []optionInfo
	for _, opt := range h.Scanner.Options() {
		info := optionInfo{
			Name:     opt.Name,
			Title:    opt.Title,
			Desc:     opt.Desc,
			Type:     opt.Type.String(),
			Unit:     opt.Unit.String(),
			Cap:      opt.Cap.String(),
			Active:   opt.IsActive(),
			Settable: opt.IsSettable(),
			Group:    opt.Type == sane.TypeGroup,
		}
		switch c := opt.Constraint.(type) {
		case sane.RangeConstraint:
			lo, hi, q := scalar(opt, c.Min), scalar(opt, c.Max), scalar(opt, c.Quant)
			info.Min, info.Max = &lo, &hi
			if c.Quant != 0 {
				info.Quant = &q
			}
		case sane.WordListConstraint:
			for _, v := range c {
				info.Choices = append(info.Choices, numberText(opt, v))
			}
		case sane.StringListConstraint:
			info.Choices = append(info.Choices, c...)
		}
		if opt.HasValue() && opt.IsActive() && opt.IsDetectable() && !scanning {
			if v, err := h.Scanner.Get(opt.Name); err == nil {
				info.Value = scanner.FormatValue(v)
			} else {
				slog.Debug("option read failed", "option", opt.Name, "err", err)
			}
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

func scalar(opt sane.Option, w int32) float64 {
	if opt.Type == sane.TypeFixed {
		return sane.Fixed(w).Float64()
	}
	return float64(w)
}

// --- Settings API ---

func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Settings.Get())
}

func (h *handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Settings.Update(s); err != nil {
		slog.Warn("settings save failed", "err", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s)
}

// --- Scan job API ---

func (h *handler) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Job.Snapshot())
}

func (h *handler) handleStartScan(w http.ResponseWriter, r *http.Request) {
	if h.StartScan == nil {
		http.Error(w, "scan jobs are disabled", http.StatusNotImplemented)
		return
	}
	if err := h.StartScan(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrBusy) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(h.Job.Snapshot())
}
