package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/OpenPrinting/go-mfp/proto/escl"
	"github.com/OpenPrinting/go-mfp/transport"
	"github.com/OpenPrinting/go-mfp/util/optional"
	"github.com/grandcat/zeroconf"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mzyy94/airsane/internal/config"
	"github.com/mzyy94/airsane/internal/scanner"
	"github.com/mzyy94/airsane/internal/webui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Share the scanner over eSCL",
	Long: `Open the scanner and serve it as an eSCL (AirScan) device, advertised
over mDNS as _uscan._tcp. A small web UI for settings, status and
metrics is served under /ui/.

When button.enabled is set, the scanner's hardware button starts a scan
that is saved with the settings chosen in the web UI.

Examples:
  airsane serve
  airsane serve --device epson2 --port 8090 --name "Office Scanner"`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8080, "HTTP listen port")
	flags.String("name", "", "advertised service name (default is the scanner model)")
	flags.String("data-dir", "", "directory for persistent settings (default keeps them in memory)")
	flags.Bool("button", false, "start a scan when the scanner button is pressed")

	viper.BindPFlag("listen_port", flags.Lookup("port"))
	viper.BindPFlag("name", flags.Lookup("name"))
	viper.BindPFlag("data_dir", flags.Lookup("data-dir"))
	viper.BindPFlag("button.enabled", flags.Lookup("button"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sctx, err := openSANE()
	if err != nil {
		return err
	}
	defer sctx.Close()

	sc, err := connectScanner(cmd, sctx, "")
	if err != nil {
		return fmt.Errorf("scanner connection failed: %w", err)
	}
	defer sc.Disconnect()

	deviceName := cfg.Name
	if deviceName == "" {
		deviceName = sc.Name()
	}
	if deviceName == "" {
		deviceName = "AirSane"
	}

	adapter := scanner.NewESCLAdapter(sc)

	store := config.NewMemoryStore()
	if cfg.DataDir != "" {
		if store, err = config.NewStore(cfg.DataDir); err != nil {
			return fmt.Errorf("settings store: %w", err)
		}
	}

	job := &scanner.ScanJobStatus{}
	startScan := newJobRunner(ctx, sc, store, job)

	if cfg.Button.Enabled {
		listener := scanner.NewButtonListener(sc, cfg.Button.Option, cfg.Button.Interval, func() {
			if err := startScan(); err != nil {
				slog.Warn("button scan not started", "err", err)
			}
		})
		if err := listener.Start(ctx); err != nil {
			slog.Warn("button listener disabled", "err", err)
		} else {
			defer listener.Stop()
		}
	}

	esclServer := escl.NewAbstractServer(escl.AbstractServerOptions{
		Scanner:  adapter,
		BasePath: "",
		Hooks: escl.ServerHooks{
			OnScannerStatusResponse: func(_ *transport.ServerQuery, status *escl.ScannerStatus) *escl.ScannerStatus {
				if sc.Scanning() {
					return nil
				}
				hasPaper, err := adapter.CheckADFStatus()
				if err != nil {
					slog.Debug("ADF status check failed", "err", err)
					return nil
				}
				if hasPaper {
					status.ADFState = optional.New(escl.ScannerAdfLoaded)
				} else {
					status.ADFState = optional.New(escl.ScannerAdfEmpty)
				}
				return status
			},
		},
	})

	ui := webui.NewHandler(webui.Options{
		Scanner:    sc,
		Adapter:    adapter,
		Settings:   store,
		Job:        job,
		StartScan:  startScan,
		ListenPort: cfg.ListenPort,
	})

	mux := http.NewServeMux()
	// Serve at /eSCL/ for clients using the rs TXT record (sane-airscan, macOS)
	mux.Handle("/eSCL/", http.StripPrefix("/eSCL", esclServer))
	mux.Handle("/ui/", http.StripPrefix("/ui", ui))
	// Also serve at root for clients that ignore rs (sane-escl)
	mux.Handle("/", esclServer)

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: logMiddleware(mux),
	}

	mdnsServer, err := zeroconf.Register(
		deviceName,
		"_uscan._tcp",
		"local.",
		cfg.ListenPort,
		adapter.TXTRecords(deviceName),
		nil,
	)
	if err != nil {
		return fmt.Errorf("mDNS registration failed: %w", err)
	}
	defer mdnsServer.Shutdown()
	slog.Info("mDNS registered", "name", deviceName, "service", "_uscan._tcp")

	go func() {
		localIP := webui.LocalIP()
		slog.Info("eSCL server starting", "addr", addr,
			"url", fmt.Sprintf("http://%s/eSCL", net.JoinHostPort(localIP, strconv.Itoa(cfg.ListenPort))),
			"ui", fmt.Sprintf("http://%s/ui/", net.JoinHostPort(localIP, strconv.Itoa(cfg.ListenPort))))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
	return nil
}

var errNoDestination = errors.New("no save destination configured")

// newJobRunner returns a webui.ScanFunc that runs one save job at a time
// in the background, using the settings current at the time of the call.
func newJobRunner(ctx context.Context, sc *scanner.Scanner, store *config.Store, job *scanner.ScanJobStatus) webui.ScanFunc {
	var busy atomic.Bool
	return func() error {
		settings := store.Get()
		if settings.SaveType != "local" {
			return errNoDestination
		}
		if !busy.CompareAndSwap(false, true) {
			return webui.ErrBusy
		}
		job.SetScanning(true)

		go func() {
			defer busy.Store(false)
			cfg := scanner.SettingsToScanConfig(settings, sc.Sources())
			files, pages, err := scanner.RunSaveJob(ctx, sc, cfg, settings.Format, settings.SavePath)
			if err != nil {
				slog.Error("scan job failed", "err", err)
			}
			job.SetResult(err, pages, files)
		}()
		return nil
	}
}

// responseRecorder captures the status code for logging.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
