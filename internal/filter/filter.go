// Package filter decides which dispatches get a profiling context.
package filter

import (
	"fmt"
	"log"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/accelprof/dispatch-profiler/internal/engine"
)

// Config holds the static filter configuration, immutable after startup.
// Absent predicates (empty slices / empty expression) are vacuously true.
type Config struct {
	// Range is the dispatch-index window: one bound accepts seq >= lo,
	// two bounds accept the half-open [lo, hi).
	Range []uint32
	// Devices is the device-index allow-set.
	Devices []uint32
	// Kernels are kernel-name substrings with OR semantics,
	// case-sensitive.
	Kernels []string
	// Expression is an optional predicate over the dispatch descriptor,
	// e.g. `queue_index % 2 == 0 || kernel_name startsWith "sgemm"`.
	Expression string
}

// Filter evaluates dispatch descriptors against a Config. It is a pure
// decision function with no side effects; the sequence counter advances
// elsewhere for every dispatch regardless of the decision.
type Filter struct {
	cfg     Config
	program *vm.Program
}

// exprEnv is the typed environment dispatch expressions are compiled
// against.
func exprEnv() map[string]interface{} {
	return map[string]interface{}{
		"kernel_name": "",
		"queue_index": uint64(0),
		"device":      uint32(0),
		"seq":         uint32(0),
	}
}

// New validates the configuration and pre-compiles the expression
// predicate, if any.
func New(cfg Config) (*Filter, error) {
	if len(cfg.Range) > 2 {
		return nil, fmt.Errorf("dispatch range takes at most two bounds, got %d", len(cfg.Range))
	}

	f := &Filter{cfg: cfg}
	if cfg.Expression != "" {
		program, err := expr.Compile(cfg.Expression, expr.Env(exprEnv()), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compiling filter expression: %w", err)
		}
		f.program = program
	}
	return f, nil
}

// Accepts reports whether the dispatch should be profiled. Every
// configured predicate must hold; seq is the dispatch's observed sequence
// value.
func (f *Filter) Accepts(d *engine.Dispatch, seq uint32) bool {
	switch len(f.cfg.Range) {
	case 1:
		if seq < f.cfg.Range[0] {
			return false
		}
	case 2:
		if seq < f.cfg.Range[0] || seq >= f.cfg.Range[1] {
			return false
		}
	}

	if len(f.cfg.Devices) > 0 {
		found := false
		for _, device := range f.cfg.Devices {
			if device == d.DeviceIndex {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Kernels) > 0 {
		found := false
		for _, substr := range f.cfg.Kernels {
			if strings.Contains(d.KernelName, substr) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.program != nil {
		env := map[string]interface{}{
			"kernel_name": d.KernelName,
			"queue_index": d.QueueIndex,
			"device":      d.DeviceIndex,
			"seq":         seq,
		}
		output, err := expr.Run(f.program, env)
		if err != nil {
			log.Printf("filter expression failed for kernel %q: %v", d.KernelName, err)
			return false
		}
		if accepted, ok := output.(bool); !ok || !accepted {
			return false
		}
	}

	return true
}
