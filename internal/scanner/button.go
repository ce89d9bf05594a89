package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mzyy94/airsane/internal/sane"
)

// DefaultButtonInterval is the sensor poll period used when none is given.
const DefaultButtonInterval = 500 * time.Millisecond

// ButtonListener polls a hardware button exposed as a read-only boolean
// option and calls back when it is pressed.
type ButtonListener struct {
	scanner  *Scanner
	option   string
	interval time.Duration
	callback func()
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewButtonListener creates a ButtonListener that calls callback on button press.
func NewButtonListener(s *Scanner, option string, interval time.Duration, callback func()) *ButtonListener {
	if option == "" {
		option = OptScanButton
	}
	if interval <= 0 {
		interval = DefaultButtonInterval
	}
	return &ButtonListener{scanner: s, option: option, interval: interval, callback: callback}
}

// Start checks that the device has the sensor option and begins polling it.
func (b *ButtonListener) Start(ctx context.Context) error {
	opt, ok := findOption(b.scanner.Options(), b.option)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoOption, b.option)
	}
	if opt.Type != sane.TypeBool || !opt.IsDetectable() {
		return fmt.Errorf("option %s is not a readable sensor", b.option)
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	slog.Info("button listener started", "option", b.option, "interval", b.interval)

	go b.loop(ctx)
	return nil
}

// Stop ends polling and waits for the goroutine to exit.
func (b *ButtonListener) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
	}
}

func (b *ButtonListener) loop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	pressed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The device is busy while a scan runs; skip the poll.
		if b.scanner.Scanning() {
			continue
		}
		v, err := b.scanner.Get(b.option)
		if err != nil {
			slog.Debug("button poll failed", "option", b.option, "err", err)
			continue
		}
		now := bool(v.(sane.Bool))
		if now && !pressed {
			slog.Info("scanner button pressed", "option", b.option)
			if b.callback != nil {
				b.callback()
			}
		}
		pressed = now
	}
}
