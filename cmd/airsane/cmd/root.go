package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mzyy94/airsane/internal/config"
	"github.com/mzyy94/airsane/internal/sane"
	"github.com/mzyy94/airsane/internal/scanner"
)

var (
	// Configuration file path.
	cfgFile string
	// Loaded by PersistentPreRunE before any subcommand runs.
	globalConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "airsane",
	Short: "Share SANE scanners over eSCL",
	Long: `airsane exposes a local SANE scanner to the network as an eSCL
(AirScan) device, and offers scanimage-style commands for direct use.

Examples:
  airsane devices
  airsane options epson2
  airsane scan -o page.png --resolution 300
  airsane serve --port 8080`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader(viper.GetViper()).Load(cfgFile)
		if err != nil {
			return err
		}
		globalConfig = cfg
		slog.SetDefault(newLogger(os.Stderr, cfg))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is search in ., $XDG_CONFIG_HOME/airsane, /etc/airsane)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.StringP("device", "d", "", "SANE device name (default is the first device found)")
	flags.Bool("local-only", true, "only list locally attached devices")

	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("device", flags.Lookup("device"))
	viper.BindPFlag("local_only", flags.Lookup("local-only"))
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openSANE initializes the system libsane.
func openSANE() (*sane.Context, error) {
	abi, err := sane.Default()
	if err != nil {
		return nil, err
	}
	ctx, err := sane.Init10(abi)
	if err != nil {
		return nil, fmt.Errorf("sane init: %w", err)
	}
	v := ctx.Version()
	slog.Debug("sane initialized", "version", fmt.Sprintf("%d.%d.%d", sane.VersionMajor(v), sane.VersionMinor(v), sane.VersionBuild(v)))
	return ctx, nil
}

func listDevices(ctx *sane.Context, localOnly bool) ([]sane.Device, error) {
	if localOnly {
		return ctx.Devices()
	}
	return ctx.AllDevices()
}

// connectScanner resolves name (or the configured device) and connects to it.
func connectScanner(cmd *cobra.Command, ctx *sane.Context, name string) (*scanner.Scanner, error) {
	if name == "" {
		name = globalConfig.Device
	}
	devices, err := listDevices(ctx, globalConfig.LocalOnly)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	dev, err := scanner.Match(devices, name)
	if err != nil {
		return nil, err
	}
	sc := scanner.New(ctx, dev)
	if err := sc.Connect(cmd.Context()); err != nil {
		return nil, err
	}
	return sc, nil
}
