// dispatch-profiler replays a recorded kernel-dispatch stream through the
// profiling-context lifecycle manager, producing the results stream,
// per-chunk trace artifacts, and (optionally) OTLP spans.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accelprof/dispatch-profiler/internal/completion"
	"github.com/accelprof/dispatch-profiler/internal/config"
	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/engine/sim"
	"github.com/accelprof/dispatch-profiler/internal/filter"
	"github.com/accelprof/dispatch-profiler/internal/metrics"
	"github.com/accelprof/dispatch-profiler/internal/otel"
	"github.com/accelprof/dispatch-profiler/internal/output"
	"github.com/accelprof/dispatch-profiler/internal/profiler"
	"github.com/accelprof/dispatch-profiler/internal/timesync"
	"github.com/accelprof/dispatch-profiler/internal/trace"
)

// cliConfig holds the parsed command line.
type cliConfig struct {
	MetricsAddr string
	StreamPath  string
}

// parseArgs parses command-line arguments.
// Expected format: program_name [--metrics-addr <addr>] <dispatch-stream.jsonl>
func parseArgs(args []string) (*cliConfig, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	programName := args[0]
	cfg := &cliConfig{}

	i := 1
	for ; i < len(args); i++ {
		if args[i] == "--metrics-addr" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--metrics-addr requires a value")
			}
			cfg.MetricsAddr = args[i+1]
			i++
			continue
		}
		break
	}

	if i >= len(args) {
		return nil, fmt.Errorf("Usage: %s [--metrics-addr <addr>] <dispatch-stream.jsonl>\nExample: %s dispatches.jsonl",
			programName, programName)
	}
	cfg.StreamPath = args[i]
	return cfg, nil
}

// dispatchEvent is one recorded dispatch in the replay stream.
type dispatchEvent struct {
	KernelName string `json:"kernel_name"`
	QueueIndex uint64 `json:"queue_index"`
	GPUIndex   uint32 `json:"gpu_index"`
	Dispatch   uint64 `json:"dispatch"`
	Begin      uint64 `json:"begin"`
	End        uint64 `json:"end"`
	Complete   uint64 `json:"complete"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// setupSink opens the results stream: results.txt inside the output
// directory when one is configured, stdout otherwise. Chunk artifacts are
// only written alongside a results file.
func setupSink(settings *config.Settings) (*output.Serializer, func(), error) {
	if settings.OutputDir == "" {
		serializer := output.NewSerializer(output.NewWriter(os.Stdout), trace.NewArtifactWriter(""))
		return serializer, func() {}, nil
	}

	if _, err := os.Stat(settings.OutputDir); err != nil {
		return nil, nil, fmt.Errorf("cannot open output directory %q: %w", settings.OutputDir, err)
	}

	path := filepath.Join(settings.OutputDir, "results.txt")
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating results file %q: %w", path, err)
	}

	cleanup := func() {
		if err := file.Close(); err != nil {
			log.Printf("Error closing results file: %v", err)
		}
	}
	return output.NewSerializer(output.NewWriter(file), trace.NewArtifactWriter(settings.OutputDir)), cleanup, nil
}

// setupSpans initializes OTLP span export when an endpoint is configured.
func setupSpans() (*otel.Emitter, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}
	if !otelCfg.Enabled() {
		return nil, func() {}, nil
	}

	tp, err := otel.InitProvider(otelCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing OTEL provider: %w", err)
	}

	converter, err := timesync.NewConverter()
	if err != nil {
		return nil, nil, fmt.Errorf("creating time converter: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.Printf("Error shutting down OTEL provider: %v", err)
		}
	}
	return otel.NewEmitter(tp.Tracer("dispatch-profiler"), converter), cleanup, nil
}

// serveMetrics exposes the profiler's self-metrics when an address is
// configured.
func serveMetrics(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()
	log.Printf("Serving metrics on %s/metrics", addr)
}

// logFeatureBanner prints the configured features, for parity with the
// collection log users see at attach time.
func logFeatureBanner(in *config.Input) {
	log.Printf("%d metrics", len(in.Metrics))
	for _, name := range in.Metrics {
		log.Printf("    %s", name)
	}
	log.Printf("%d traces", len(in.Traces))
	for _, tr := range in.Traces {
		log.Printf("    %s (copy=%v)", tr.Name, tr.Copy)
		for name, value := range tr.Parameters {
			log.Printf("      %s = 0x%x", name, value)
		}
	}
}

// replay feeds the recorded dispatch stream through the profiler,
// delivering a completion for every accepted dispatch.
func replay(ctx context.Context, path string, prof *profiler.Profiler, completions chan<- uint32) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dispatch stream %q: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var event dispatchEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return fmt.Errorf("parsing dispatch stream line %d: %w", line, err)
		}

		record := &engine.Record{
			Dispatch: event.Dispatch,
			Begin:    event.Begin,
			End:      event.End,
		}
		record.Complete.Store(event.Complete)

		index, accepted, err := prof.OnDispatch(&engine.Dispatch{
			KernelName:  event.KernelName,
			QueueIndex:  event.QueueIndex,
			DeviceIndex: event.GPUIndex,
			Record:      record,
		})
		if err != nil {
			return err
		}
		if accepted {
			select {
			case completions <- index:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return scanner.Err()
}

func run() error {
	cfg, err := parseArgs(os.Args)
	if err != nil {
		return err
	}

	settings, err := config.ParseSettings()
	if err != nil {
		return err
	}
	if settings.Input == "" {
		return fmt.Errorf("input is not specified, DISPATCH_PROFILER_INPUT env")
	}

	in, err := config.LoadInput(settings.Input)
	if err != nil {
		return err
	}
	log.Printf("Input from %q", settings.Input)
	logFeatureBanner(in)

	dispatchFilter, err := filter.New(in.FilterConfig())
	if err != nil {
		return err
	}

	serializer, cleanupSink, err := setupSink(settings)
	if err != nil {
		return err
	}
	defer cleanupSink()

	spans, cleanupSpans, err := setupSpans()
	if err != nil {
		return err
	}
	defer cleanupSpans()

	serveMetrics(cfg.MetricsAddr)

	prof, err := profiler.New(profiler.Config{
		Engine:     sim.New(),
		Features:   in.Features(),
		Filter:     dispatchFilter,
		Serializer: serializer,
		Spans:      spans,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	completions := make(chan uint32, 64)
	stream := completion.New(completions, prof)
	if err := stream.Start(ctx); err != nil {
		return err
	}

	replayErr := replay(ctx, cfg.StreamPath, prof, completions)

	if err := stream.Stop(); err != nil {
		log.Printf("Error stopping completion stream: %v", err)
	}
	if err := prof.Close(); err != nil {
		log.Printf("Error closing profiler: %v", err)
	}
	if settings.OutputDir != "" {
		log.Printf("Output directory %s", settings.OutputDir)
	}

	return replayErr
}
