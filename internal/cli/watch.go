package cli

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/config"
	"github.com/iliyamo/childcare-checkin/internal/device"
	"github.com/iliyamo/childcare-checkin/internal/notifier"
	"github.com/iliyamo/childcare-checkin/internal/store"
)

type watchOptions struct {
	*RootOptions
	Quiet bool
}

func newWatchCommand(root *RootOptions) *cobra.Command {
	opts := &watchOptions{RootOptions: root}
	cmd := &cobra.Command{
		Use:   "watch [venue-id]",
		Short: "Mirror a venue and alert on emergencies",
		Long: `Activate a venue on this device and keep it in sync until interrupted.
Without a venue id the selection saved by the previous session is restored.

Example:
  usher watch 6f1c0e9a-8d7e-4d8c-9a55-1f0f3c8b2a10 --device tablet-2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
	}
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "do not ring the terminal bell")
	return cmd
}

// deviceConfig maps the SYNC_* settings onto a device runtime.
func deviceConfig(sc config.SyncConfig, deviceID string) device.Config {
	cfg := device.DefaultConfig()
	cfg.PollInterval = sc.PollInterval
	cfg.KeepAliveInterval = sc.KeepAliveInterval
	cfg.FailureThreshold = sc.FailureThreshold
	cfg.Cooldown = sc.Cooldown
	cfg.Debounce = sc.Debounce
	cfg.AlertDismiss = sc.AlertDismiss
	cfg.Store.DeviceID = deviceID
	cfg.Store.SweepEnabled = sc.SweepEnabled
	cfg.Store.SelectionTTL = sc.SelectionTTL
	cfg.Store.DefaultMaxOccupancy = sc.DefaultMaxOccupancy
	return cfg
}

// syncWriter serializes output from the alert and snapshot callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func runWatch(cmd *cobra.Command, opts *watchOptions, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	lg := opts.log()

	backend, err := opts.OpenBackend(ctx, lg)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	out := &syncWriter{w: cmd.OutOrStdout()}
	devOpts := []device.Option{device.WithPrefs(backend.Prefs), device.WithLogger(lg)}
	if !opts.Quiet {
		devOpts = append(devOpts, device.WithSounder(notifier.TerminalBell{W: out}))
	}
	d := device.New(backend.Remote, backend.Broker, deviceConfig(config.LoadSyncConfig(), opts.DeviceID), devOpts...)
	defer func() { _ = d.Close() }()

	d.Alerts().OnShow(func(a notifier.Alert) {
		ev := a.Event
		fmt.Fprintf(out, "EMERGENCY %s: call %s at %s\n", ev.ChildName, ev.GuardianName, ev.GuardianPhone)
	})
	d.Alerts().OnClear(func() { fmt.Fprintln(out, "alert dismissed") })

	var swept bool
	if len(args) == 1 {
		swept, err = d.Activate(ctx, args[0])
		if err != nil {
			return err
		}
	} else {
		var restored bool
		restored, swept, err = d.Restore(ctx)
		if err != nil {
			return err
		}
		if !restored {
			return fmt.Errorf("no saved venue for device %q: pass a venue id", opts.DeviceID)
		}
	}
	if swept {
		fmt.Fprintln(out, "data from a previous day was removed")
	}

	venueID := d.ActiveVenueID()
	name := venueID
	if v, ok := d.Store().Snapshot().Venue(venueID); ok {
		name = v.Name
	}
	fmt.Fprintf(out, "watching %s\n", name)

	var (
		mu   sync.Mutex
		last = -1
		once sync.Once
		gone = make(chan struct{})
	)
	report := func(s *store.Snapshot) {
		if s.ActiveVenueID != venueID {
			return
		}
		if errors.Is(s.Err, apperr.ErrVenueNotFound) {
			once.Do(func() { close(gone) })
			return
		}
		data := s.Data[venueID]
		if data == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if n := len(data.Children); n != last {
			last = n
			occ := data.Occupancy()
			fmt.Fprintf(out, "present %d/%d\n", occ.Present, occ.Max)
		}
	}
	unsubscribe := d.Store().Subscribe(report)
	defer unsubscribe()
	report(d.Store().Snapshot())

	select {
	case <-ctx.Done():
		return nil
	case <-gone:
		return fmt.Errorf("venue %s no longer exists", venueID)
	}
}
