// burnin fills disks with a deterministic garbage stream and reads it back.
// Drives that cannot return exactly what was written are reported for RMA
// before they ever hold real data.
//
// Build:
//
//	go build -o burnin .
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"burnin/burnin"
	"burnin/device"
	"burnin/retrodfrg"
)

// exitInterrupted is the status after SIGINT, SIGTERM or a stop key.
const exitInterrupted = 130

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func main() {
	code, err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	must(err)
	os.Exit(code)
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	prober device.Prober
	opener burnin.Opener
	newUI  func() (*retrodfrg.UI, error)
	code   int
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		prober: device.DefaultProber(),
		opener: device.Opener{},
		newUI:  retrodfrg.NewUI,
	}
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	return newApp(stdout, stderr).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) (int, error) {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return 2, err
	}
	return a.code, nil
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "burnin [DEVICE...]",
		Short: "Burn-in test for disks",
		Long: "Write a pseudo-random stream over every byte of a disk, read it back and\n" +
			"report any device that does not return exactly what was written.\n\n" +
			"ALL DATA ON THE TESTED DEVICES IS DESTROYED.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return a.run(cmd, args)
		},
	}
	addGlobalFlags(root.PersistentFlags())
	addRunFlags(root.Flags())

	runCmd := &cobra.Command{
		Use:   "run DEVICE...",
		Short: "Write and verify one or more devices [DESTRUCTIVE]",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.run,
	}
	addRunFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	root.AddCommand(a.deviceCmd())
	return root
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, a.stderr)
	log := logger.WithField("run", uuid.NewString())
	if f := v.ConfigFileUsed(); f != "" {
		log.WithField("config", f).Debug("Loaded configuration")
	}

	sessions, err := a.plan(cfg, args, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rc := burnin.RunConfig{
		Parallel: cfg.Parallel,
		Log:      log,
		Progress: func(s burnin.Session) burnin.Progress {
			return burnin.NewLogProgress(log.WithField("device", s.Path), cfg.Interval)
		},
	}

	var (
		summary     burnin.Summary
		interrupted bool
	)
	if cfg.UI && len(sessions) > 1 {
		log.Warn("--ui shows a single device; falling back to log output")
		cfg.UI = false
	}
	if cfg.UI {
		summary, interrupted, err = a.runWithUI(ctx, cancel, sessions[0], rc, logger)
		if err != nil {
			return err
		}
	} else {
		summary = burnin.RunAll(ctx, sessions, rc)
		interrupted = ctx.Err() != nil
	}

	summary.Log(log)
	if failed := summary.Failed(); len(failed) > 0 {
		paths := make([]string, len(failed))
		for i, r := range failed {
			paths[i] = r.Path
		}
		log.WithField("devices", strings.Join(paths, ", ")).
			Errorf("%d of %d devices failed", len(failed), len(summary.Reports))
	}
	a.code = summary.ExitCode()
	if interrupted {
		log.Warn("Interrupted")
		a.code = exitInterrupted
	}
	return nil
}

// plan probes and checks every device before any of them is opened for
// writing. All devices of a run share one seed.
func (a *app) plan(cfg config, paths []string, log *logrus.Entry) ([]burnin.Session, error) {
	seed := cfg.Seed
	if !cfg.SeedSet {
		seed = burnin.NewSeed()
	}
	seen := make(map[string]string)
	sessions := make([]burnin.Session, 0, len(paths))
	for _, p := range paths {
		info, err := a.prober.Probe(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[info.Resolved]; ok {
			return nil, fmt.Errorf("%s and %s are the same device", prev, p)
		}
		seen[info.Resolved] = p
		if err := device.Check(info, cfg.Policy, log); err != nil {
			return nil, err
		}
		opts := burnin.TestOptions{
			BufferSize:     device.BufferSizeFor(info, cfg.BufferSize),
			Seed:           seed,
			DeviceCapacity: info.Capacity,
			QueueDepth:     cfg.QueueDepth,
			Sync:           cfg.Sync,
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		sessions = append(sessions, burnin.Session{Path: p, Serial: info.Serial, Options: opts, Opener: a.opener})
	}
	log.WithField("seed", fmt.Sprintf("%#x", seed)).Info("Pass --seed to repeat this run")
	return sessions, nil
}

// runWithUI takes over the terminal for a single session. Log lines are
// held back while the screen is in use and written out afterwards.
func (a *app) runWithUI(ctx context.Context, cancel context.CancelFunc, s burnin.Session, rc burnin.RunConfig, logger *logrus.Logger) (burnin.Summary, bool, error) {
	ui, err := a.newUI()
	if err != nil {
		return burnin.Summary{}, false, fmt.Errorf("starting UI: %w", err)
	}
	var held bytes.Buffer
	logger.SetOutput(&held)
	defer func() {
		ui.Close()
		logger.SetOutput(a.stderr)
		_, _ = a.stderr.Write(held.Bytes())
	}()
	go func() {
		select {
		case <-ui.Stopped():
			cancel()
		case <-ctx.Done():
		}
	}()

	ui.SetTitle(" BURNIN - " + s.Path + " ")
	ui.SetSummaryLines(sessionSummary(s))
	ui.SetLegend(retrodfrg.Legend())
	ui.SetPhases([]string{"Write", "Verify"})
	rc.Progress = func(burnin.Session) burnin.Progress { return newUIProgress(ui) }

	summary := burnin.RunAll(ctx, []burnin.Session{s}, rc)
	if ctx.Err() != nil {
		return summary, true, nil
	}
	ui.SetStatusLines([]string{resultLine(summary.Reports[0]), "Press Q to close"})
	ui.LayoutAndDraw()
	_ = retrodfrg.WaitWithStop(ui, time.Minute)
	return summary, false, nil
}

func sessionSummary(s burnin.Session) []string {
	serial := s.Serial
	if serial == "" {
		serial = "unknown"
	}
	capacity := "until full"
	if c := s.Options.DeviceCapacity; c > 0 {
		capacity = humanize.IBytes(c)
	}
	return []string{
		fmt.Sprintf("Device: %s   Serial: %s", s.Path, serial),
		fmt.Sprintf("Capacity: %s   Chunk: %d bytes   Seed: %#x", capacity, s.Options.BufferSize, s.Options.Seed),
	}
}

func resultLine(r burnin.Report) string {
	switch r.Outcome() {
	case burnin.OutcomePass:
		return fmt.Sprintf("PASSED: %s written and read back", humanize.IBytes(r.Verify.BytesRead))
	case burnin.OutcomeMismatch:
		return fmt.Sprintf("FAILED: %d chunks did not read back - replace/RMA the device", r.Verify.Mismatches)
	default:
		return fmt.Sprintf("ERROR: %v", r.Err)
	}
}

func (a *app) deviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device related utilities (safe, read-only)",
	}

	var listAll bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List disks that can be tested (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.list(listAll)
		},
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include partitions and other devices that are not tested by default")
	deviceCmd.AddCommand(listCmd)

	infoCmd := &cobra.Command{
		Use:   "info PATH",
		Short: "Show what burnin knows about a device, image file or mount point (read-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.info(args[0])
		},
	}
	deviceCmd.AddCommand(infoCmd)
	return deviceCmd
}

func (a *app) list(all bool) error {
	entries, err := device.List()
	if err != nil {
		return err
	}
	out := a.stdout
	fmt.Fprintf(out, "OS: %s\n", runtime.GOOS)
	fmt.Fprintln(out, "This is a SAFE, read-only listing. Nothing is written.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Whole disks:")
	fmt.Fprintf(out, "  %-18s  %-12s  %-20s  %-8s\n", "Path", "Media", "Serial", "Size")
	printed := false
	for _, e := range entries {
		if !e.Compatible {
			continue
		}
		media, serial, size := "?", "", "?"
		if info, err := a.prober.Probe(e.Path); err == nil {
			media, serial = info.Media.String(), info.Serial
			if info.Capacity > 0 {
				size = humanize.IBytes(info.Capacity)
			}
			if len(info.Mounts) > 0 {
				media += "*"
			}
		}
		fmt.Fprintf(out, "  %-18s  %-12s  %-20s  %-8s\n", e.Path, media, serial, size)
		printed = true
	}
	if !printed {
		fmt.Fprintln(out, "  <none detected>")
	}
	fmt.Fprintln(out)
	if all {
		fmt.Fprintln(out, "Not tested without overrides:")
		for _, e := range entries {
			if e.Compatible {
				continue
			}
			reason := e.Reason
			if strings.TrimSpace(reason) == "" {
				reason = "not a whole-disk device"
			}
			fmt.Fprintf(out, "  %s  (%s)\n", e.Path, reason)
		}
		fmt.Fprintln(out)
	}
	if vols, err := device.Mounted(); err == nil && len(vols) > 0 {
		fmt.Fprintln(out, "Mounted volumes (refused while mounted):")
		fmt.Fprintf(out, "  %-24s  %-14s  %-18s  %-8s\n", "Mount", "FS", "Device", "Size")
		for _, m := range vols {
			fmt.Fprintf(out, "  %-24s  %-14s  %-18s  %-8s\n", m.Mountpoint, m.Fstype, m.Device, humanize.IBytes(m.Size))
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, "Notes:")
	fmt.Fprintln(out, "  - * marks disks with a mounted partition.")
	switch runtime.GOOS {
	case "darwin":
		fmt.Fprintln(out, "  - Whole disks are /dev/diskN. Partitions like /dev/diskNsM need --allow-any-block-device.")
	case "linux":
		fmt.Fprintln(out, "  - Whole disks: /dev/sdX, /dev/vdX, /dev/nvmeXnY, /dev/mmcblkX. Partitions need --allow-any-block-device.")
	case "windows":
		fmt.Fprintln(out, "  - Media type cannot be detected on Windows; testing needs --i-know-what-im-doing-let-me-skip-sanity-checks.")
	}
	return nil
}

func (a *app) info(path string) error {
	dev, err := device.ResolveMount(path)
	if err != nil {
		return err
	}
	info, err := a.prober.Probe(dev)
	if err != nil {
		return err
	}
	out := a.stdout
	fmt.Fprintln(out, "Device info")
	for _, line := range info.Describe() {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "  Chunk:    %d bytes\n", device.BufferSizeFor(info, 0))
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	if err := device.Check(info, device.CheckPolicy{}, logrus.NewEntry(quiet)); err != nil {
		fmt.Fprintf(out, "  Checks:   %v\n", err)
	} else {
		fmt.Fprintln(out, "  Checks:   ok")
	}
	return nil
}
