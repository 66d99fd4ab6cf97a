package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/scrollcap/internal/adb"
	"jordanella.com/scrollcap/internal/config"
	"jordanella.com/scrollcap/internal/database"
	"jordanella.com/scrollcap/internal/logging"
	"jordanella.com/scrollcap/internal/session"
)

type runFlags struct {
	mode        string
	address     string
	adbPath     string
	maxPages    int
	output      string
	textFile    string
	prefix      string
	swipe       string
	delayMin    time.Duration
	delayMax    time.Duration
	settle      time.Duration
	startDelay  time.Duration
	threshold   int
	timestamped bool
	keepDumps   bool
	database    string
}

func newRunCmd(a *app) *cobra.Command {
	return newRunCmdWithFlags(a, &runFlags{})
}

func newRunCmdWithFlags(a *app, f *runFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture pages until the list stops scrolling",
		Example: `  scrollcap run --mode image --address 127.0.0.1:5555 --output ./screenshots
  scrollcap run --mode text --address 127.0.0.1:5556 --output ./texts --text-file reviews.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.apply(cmd, a.cfg)
			if err != nil {
				return err
			}
			return runSession(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.mode, "mode", "m", "", "capture mode: image or text")
	flags.StringVarP(&f.address, "address", "a", "", "device address (host:port)")
	flags.StringVar(&f.adbPath, "adb", "", "adb executable or its directory")
	flags.IntVarP(&f.maxPages, "max-pages", "n", 0, "maximum number of pages to capture")
	flags.StringVarP(&f.output, "output", "o", "", "output directory")
	flags.StringVar(&f.textFile, "text-file", "", "text mode: name of the line list file")
	flags.StringVar(&f.prefix, "prefix", "", "image mode: file name prefix")
	flags.StringVar(&f.swipe, "swipe", "", "swipe geometry as startX,startY,endX,endY,durationMs")
	flags.DurationVar(&f.delayMin, "delay-min", 0, "lower bound of the random wait before each scroll")
	flags.DurationVar(&f.delayMax, "delay-max", 0, "upper bound of the random wait before each scroll")
	flags.DurationVar(&f.settle, "settle", 0, "wait after each scroll before capturing")
	flags.DurationVar(&f.startDelay, "start-delay", 0, "wait before the first capture")
	flags.IntVar(&f.threshold, "threshold", 0, "consecutive unchanged observations required to stop (default 2 image, 3 text)")
	flags.BoolVar(&f.timestamped, "timestamped", false, "image mode: add a timestamp to file names")
	flags.BoolVar(&f.keepDumps, "keep-dumps", false, "text mode: keep each page's raw ui dump")
	flags.StringVar(&f.database, "db", "", "SQLite run ledger path")

	return cmd
}

// apply overlays explicitly set flags onto the loaded configuration.
func (f *runFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	changed := cmd.Flags().Changed

	if changed("mode") {
		mode, err := config.ParseMode(f.mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if changed("address") {
		cfg.Address = f.address
	}
	if changed("adb") {
		cfg.ADBPath = f.adbPath
	}
	if changed("max-pages") {
		cfg.MaxPages = f.maxPages
	}
	if changed("output") {
		cfg.OutputDir = f.output
	}
	if changed("text-file") {
		cfg.TextFile = f.textFile
	}
	if changed("prefix") {
		cfg.FilePrefix = f.prefix
	}
	if changed("swipe") {
		swipe, err := parseSwipe(f.swipe)
		if err != nil {
			return cfg, err
		}
		cfg.Swipe = swipe
	}
	if changed("delay-min") {
		cfg.DelayMin = f.delayMin
	}
	if changed("delay-max") {
		cfg.DelayMax = f.delayMax
	}
	if changed("settle") {
		cfg.SettleDelay = f.settle
	}
	if changed("start-delay") {
		cfg.StartDelay = f.startDelay
	}
	if changed("threshold") {
		if cfg.Mode == config.ModeText {
			cfg.TextThreshold = f.threshold
		} else {
			cfg.ImageThreshold = f.threshold
		}
	}
	if changed("timestamped") {
		cfg.Timestamped = f.timestamped
	}
	if changed("keep-dumps") {
		cfg.KeepDumps = f.keepDumps
	}
	if changed("db") {
		cfg.DatabasePath = f.database
	}

	return cfg, cfg.Validate()
}

func parseSwipe(s string) (config.Swipe, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return config.Swipe{}, fmt.Errorf("%w: swipe must be startX,startY,endX,endY,durationMs", config.ErrInvalid)
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return config.Swipe{}, fmt.Errorf("%w: swipe value %q is not an integer", config.ErrInvalid, p)
		}
		values[i] = v
	}

	return config.Swipe{
		StartX:     values[0],
		StartY:     values[1],
		EndX:       values[2],
		EndY:       values[3],
		DurationMs: values[4],
	}, nil
}

func newController(cfg config.Config) (*adb.Controller, error) {
	adbPath, err := adb.FindADB(cfg.ADBPath)
	if err != nil {
		return nil, err
	}
	return adb.NewController(adbPath, cfg.Address,
		adb.WithTimeout(cfg.CommandTimeout),
		adb.WithLogger(logging.NewLogger("ADB")),
	), nil
}

func runSession(cmd *cobra.Command, cfg config.Config) error {
	log := logging.NewLogger("Main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller, err := newController(cfg)
	if err != nil {
		return err
	}
	defer controller.Disconnect(context.Background())

	opts := []session.Option{}
	if cfg.DatabasePath != "" {
		db, err := database.OpenAndMigrate(cfg.DatabasePath)
		if err != nil {
			// The ledger is history only; capture proceeds without it.
			log.Error("Run ledger unavailable", err)
		} else {
			defer db.Close()
			opts = append(opts, session.WithRecorder(db))
		}
	}

	s := session.New(cfg, controller, opts...)
	sum, err := s.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:    %s\n", sum.RunID)
	fmt.Fprintf(out, "status: %s (%s)\n", sum.Status, sum.Reason)
	fmt.Fprintf(out, "pages:  %d\n", sum.Pages)
	if sum.Mode == config.ModeText {
		fmt.Fprintf(out, "lines:  %d\n", sum.Lines)
		fmt.Fprintf(out, "file:   %s\n", sum.TextFile)
	} else {
		fmt.Fprintf(out, "images: %d in %s\n", len(sum.Artifacts), cfg.OutputDir)
	}
	return nil
}
