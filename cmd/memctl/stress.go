package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/nativemem/internal/logger"
	"github.com/joshuapare/nativemem/internal/sizes"
	"github.com/joshuapare/nativemem/memory"
	"github.com/joshuapare/nativemem/memory/buddy"
	"github.com/joshuapare/nativemem/memory/debug"
	"github.com/joshuapare/nativemem/memory/goheap"
	"github.com/joshuapare/nativemem/memory/mmap"
	"github.com/joshuapare/nativemem/memory/tracing"
	"github.com/joshuapare/nativemem/memory/tracking"
)

var (
	stressBackend string
	stressDebug   bool
	stressTrace   bool
	stressCount   int
	stressSize    uint
	stressAlign   uint
	stressRegion  uint
)

var backends = []string{"goheap", "mmap", "buddy"}

func init() {
	cmd := newStressCmd()
	cmd.Flags().StringVar(&stressBackend, "backend", "goheap", "Backend: "+strings.Join(backends, ", "))
	cmd.Flags().BoolVar(&stressDebug, "debug", false, "Wrap the backend with red zones and poisoning")
	cmd.Flags().BoolVar(&stressTrace, "trace", false, "Log every allocator call at debug level")
	cmd.Flags().IntVar(&stressCount, "count", 1000, "Workload iterations")
	cmd.Flags().UintVar(&stressSize, "size", 256, "Payload size in bytes")
	cmd.Flags().UintVar(&stressAlign, "align", 64, "Alignment for aligned allocations")
	cmd.Flags().UintVar(&stressRegion, "region", 64<<20, "Buddy region size in bytes")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a mixed allocation workload against a backend",
		Long: `The stress command installs a backend behind the allocation façade and
runs typed arrays, constructed values, sized tail objects and managed objects
through it. It reports allocation counters and fails on leaks or, with
--debug, on red zone and poison corruption.

Example:
  memctl stress --backend buddy --count 10000
  memctl stress --backend mmap --debug --size 4096
  memctl stress --trace -v --count 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

// StressReport is the result of one stress run.
type StressReport struct {
	Backend   string         `json:"backend"`
	Count     int            `json:"count"`
	Size      uint           `json:"size"`
	Alignment uint           `json:"alignment"`
	Debug     bool           `json:"debug"`
	Stats     tracking.Stats `json:"stats"`
}

func runStress() error {
	if stressCount < 0 {
		return fmt.Errorf("count must not be negative, got %d", stressCount)
	}
	if !sizes.IsPowerOfTwo(uintptr(stressAlign)) {
		return fmt.Errorf("align must be a power of two, got %d", stressAlign)
	}

	backend, closeBackend, err := openBackend(stressBackend)
	if err != nil {
		return err
	}

	var checker *debug.Allocator
	if stressDebug {
		checker = debug.New(backend, &debug.Options{
			RedZone:   debug.DefaultOptions().RedZone,
			KeepFreed: true,
			Logger:    logger.L,
		})
		backend = checker
	}
	counter := tracking.New(backend)
	backend = counter
	if stressTrace {
		backend = tracing.New(backend, traceLogger())
	}

	restore := memory.SetAllocator(backend)
	runErr := runWorkload(workload{
		count:    stressCount,
		size:     uintptr(stressSize),
		align:    uintptr(stressAlign),
		progress: progressPrinter(),
	})
	restore()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if checker != nil {
		if err := checker.Verify(); err != nil {
			errs = append(errs, err)
		}
		checker.Release()
	}
	stats := counter.Stats()
	if runErr == nil && stats.LiveBlocks != 0 {
		errs = append(errs, fmt.Errorf("leak: %d blocks (%d bytes) still live", stats.LiveBlocks, stats.LiveBytes))
	}
	if err := closeBackend(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", stressBackend, err))
	}

	logger.L.Info("stress finished", "backend", stressBackend, "stats", stats.String())

	report := StressReport{
		Backend:   stressBackend,
		Count:     stressCount,
		Size:      stressSize,
		Alignment: stressAlign,
		Debug:     stressDebug,
		Stats:     stats,
	}
	if jsonOut {
		if err := printJSON(report); err != nil {
			errs = append(errs, err)
		}
	} else {
		printStressReport(report)
	}
	return errors.Join(errs...)
}

// openBackend returns the named backend and a function that releases it.
func openBackend(name string) (memory.Allocator, func() error, error) {
	switch name {
	case "goheap":
		return goheap.New(), func() error { return nil }, nil
	case "mmap":
		a := mmap.New(&mmap.Options{Logger: logger.L})
		return a, a.Release, nil
	case "buddy":
		opts := buddy.DefaultOptions()
		opts.RegionSize = uintptr(stressRegion)
		opts.Logger = logger.L
		a, err := buddy.New(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open buddy pool: %w", err)
		}
		return a, a.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q (want one of %s)", name, strings.Join(backends, ", "))
}

// traceLogger returns logger.L when verbose logging is on, otherwise a
// stderr logger at debug level so --trace works on its own.
func traceLogger() *slog.Logger {
	if verbose {
		return logger.L
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// progressPrinter returns a progress callback that redraws one line on
// stderr, or nil when stderr is not a terminal or output is quiet.
func progressPrinter() func(done, total int) {
	if quiet || stressTrace || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(os.Stderr, "\r%d/%d iterations", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func printStressReport(r StressReport) {
	p := message.NewPrinter(language.English)
	printInfo("Backend: %s", r.Backend)
	if r.Debug {
		printInfo(" (debug)")
	}
	printInfo("\n")
	printInfo("%s", p.Sprintf("Workload: %d iterations, %d byte payloads, %d byte alignment\n", r.Count, r.Size, r.Alignment))
	printInfo("\n%s", r.Stats.Format(p))
}
