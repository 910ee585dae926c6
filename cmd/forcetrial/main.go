// Command forcetrial records and analyzes load-sensor trials from a terminal
// without a Viam machine.
//
//	forcetrial acquire -trial press-01 -port /dev/ttyACM0
//	forcetrial analyze -trial press-01
//	forcetrial discard -trial press-01
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.viam.com/rdk/logging"

	"forcetrial"
	"forcetrial/internal/acquisition"
	"forcetrial/internal/analysis"
	"forcetrial/internal/display"
	"forcetrial/internal/report"
	"forcetrial/internal/serialsource"
	"forcetrial/internal/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: forcetrial <acquire|analyze|discard> [flags]")
	fmt.Fprintln(os.Stderr, "run 'forcetrial <command> -h' for command flags")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := logging.NewLogger("forcetrial")
	var err error
	switch os.Args[1] {
	case "acquire":
		err = runAcquire(os.Args[2:], logger)
	case "analyze":
		err = runAnalyze(os.Args[2:], logger)
	case "discard":
		err = runDiscard(os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// storageFlags registers the storage flags shared by every command.
func storageFlags(fs *flag.FlagSet) *forcetrial.StorageConfig {
	cfg := &forcetrial.StorageConfig{}
	fs.StringVar(&cfg.DataDir, "data-dir", ".", "Directory for trial and report files")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string; replaces -data-dir")
	fs.BoolVar(&cfg.Artifacts, "artifacts", true, "Render plot and PDF next to file reports")
	return cfg
}

func openStore(ctx context.Context, cfg *forcetrial.StorageConfig, logger logging.Logger) (store.Store, func(), error) {
	if cfg.PostgresDSN != "" {
		cfg.DataDir = ""
	}
	return forcetrial.OpenStore(ctx, *cfg, logger)
}

func runAcquire(args []string, logger logging.Logger) error {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	trialID := fs.String("trial", "", "Trial identifier (required)")
	port := fs.String("port", "", "Serial port of the load cell (required)")
	baud := fs.Uint("baud", serialsource.DefaultBaudRate, "Serial baud rate")
	invert := fs.Bool("invert", false, "Negate every reading")
	stab := fs.Int("stabilization", acquisition.DefaultStabilizationCount, "Readings discarded before recording")
	window := fs.Int("window", acquisition.DefaultWindowLength, "Samples shown in the live display")
	stride := fs.Int("stride", acquisition.DefaultSampleStride, "Refresh the display every N samples")
	duration := fs.Duration("duration", 0, "Stop automatically after this long (0 waits for Ctrl-C)")
	broker := fs.String("mqtt-broker", "", "Publish live updates to this MQTT broker, e.g. tcp://localhost:1883")
	topic := fs.String("mqtt-topic", "forcetrial", "MQTT topic prefix")
	displayAddr := fs.String("display-addr", "", "Serve live updates over websocket on this address, e.g. :8090")
	storage := storageFlags(fs)
	fs.Parse(args)

	if *trialID == "" || *port == "" {
		fs.Usage()
		return errors.New("-trial and -port are required")
	}

	ctx := context.Background()
	trials, closeStore, err := openStore(ctx, storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	observers := display.Fanout{acquisition.ObserverFuncs{
		Progress: func(p acquisition.Progress) {
			fmt.Fprintf(os.Stderr, "\rstabilizing %3.0f%%", p.Fraction*100)
			if p.Done == p.Total {
				fmt.Fprintln(os.Stderr)
			}
		},
		Display: func(w acquisition.Window) {
			fmt.Fprintf(os.Stderr, "\r%6d samples, latest %10.3f", w.Accepted, w.Values[w.Len()-1])
		},
	}}
	if *broker != "" {
		client, err := display.Connect(*broker, "forcetrial-cli")
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		observers = append(observers, display.NewMQTTPublisher(client, *topic, logger))
	}
	if *displayAddr != "" {
		hub := display.NewHub(logger)
		defer hub.Close()
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: *displayAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("display server: %v", err)
			}
		}()
		defer srv.Close()
		observers = append(observers, hub)
	}

	if _, err := trials.DeleteTrial(ctx, *trialID); err != nil {
		return err
	}

	engine := acquisition.NewEngine(logger, acquisition.WithObserver(observers))
	cfg := acquisition.Config{Invert: *invert, StabilizationCount: *stab, WindowLength: *window, SampleStride: *stride}
	open := func() (acquisition.Source, error) {
		p, err := serialsource.Open(serialsource.Options{PortName: *port, BaudRate: *baud})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if err := engine.Start(ctx, *trialID, cfg, open); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	ended := make(chan struct{})
	go func() {
		engine.Wait(context.Background())
		close(ended)
	}()
	select {
	case <-sigCtx.Done():
	case <-timeout:
	case <-ended:
	}
	fmt.Fprintln(os.Stderr)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, runErr := engine.Stop(stopCtx)
	var ioErr *acquisition.IOFailure
	if runErr != nil && !errors.As(runErr, &ioErr) {
		return runErr
	}
	if !res.HasSamples {
		fmt.Println("No samples recorded.")
		return runErr
	}
	if err := trials.SaveTrial(ctx, res.Record); err != nil {
		return err
	}
	fmt.Printf("Saved trial %q with %d samples.\n", res.Record.ID(), res.Record.Len())
	return runErr
}

func runAnalyze(args []string, logger logging.Logger) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	trialID := fs.String("trial", "", "Trial identifier (required)")
	interval := fs.Int("peak-interval", analysis.DefaultPeakInterval, "Minimum samples between peaks")
	minHeight := fs.Float64("min-height", analysis.DefaultMinHeight, "Minimum peak force")
	storage := storageFlags(fs)
	fs.Parse(args)

	if *trialID == "" {
		fs.Usage()
		return errors.New("-trial is required")
	}

	ctx := context.Background()
	trials, closeStore, err := openStore(ctx, storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	snap, err := trials.LoadTrial(ctx, *trialID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("trial %q not found", *trialID)
	}
	if err != nil {
		return err
	}

	rep, err := analysis.Analyze(snap, analysis.Options{PeakInterval: *interval, MinHeight: *minHeight})
	if err != nil {
		return err
	}
	if rep.Degraded != nil {
		logger.Warnf("%v", rep.Degraded)
	}
	if err := trials.SaveReport(ctx, rep); err != nil {
		return err
	}
	return report.WriteSummary(os.Stdout, rep)
}

func runDiscard(args []string, logger logging.Logger) error {
	fs := flag.NewFlagSet("discard", flag.ExitOnError)
	trialID := fs.String("trial", "", "Trial identifier (required)")
	storage := storageFlags(fs)
	fs.Parse(args)

	if *trialID == "" {
		fs.Usage()
		return errors.New("-trial is required")
	}

	ctx := context.Background()
	trials, closeStore, err := openStore(ctx, storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deleted, err := trials.DeleteTrial(ctx, *trialID)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Println("Nothing to discard.")
		return nil
	}
	fmt.Printf("Discarded trial %q.\n", *trialID)
	return nil
}
