package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/filter"
)

// traceParameterNames is the closed set of accepted trace parameters.
var traceParameterNames = map[string]bool{
	"COMPUTE_UNIT_TARGET": true,
	"VM_ID_MASK":          true,
	"MASK":                true,
	"TOKEN_MASK":          true,
	"TOKEN_MASK2":         true,
}

// Input is the YAML input document: which metrics and traces to collect
// and which dispatches to profile. Consumed once at startup, immutable
// afterwards.
type Input struct {
	// Metrics are scalar counter / derived metric names, in output order.
	Metrics []string `yaml:"metrics"`
	// Traces configure execution-trace collection; they follow the
	// metrics in output order.
	Traces []TraceInput `yaml:"traces"`

	// Kernel filters dispatches by kernel-name substring (OR semantics).
	Kernel []string `yaml:"kernel"`
	// GPUIndex filters dispatches by device index.
	GPUIndex []uint32 `yaml:"gpu_index"`
	// Range filters by dispatch index: [lo] or [lo, hi).
	Range []uint32 `yaml:"range"`
	// Expression is an optional dispatch filter expression.
	Expression string `yaml:"expression"`
}

// TraceInput configures one execution trace.
type TraceInput struct {
	Name string `yaml:"name"`
	// Copy selects pre-copied payload delivery over lazy iteration.
	Copy bool `yaml:"copy"`
	// Parameters maps parameter names to values; names must belong to
	// the accepted set.
	Parameters map[string]uint32 `yaml:"parameters"`
}

// LoadInput reads and validates the input document at path.
func LoadInput(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input %q: %w", path, err)
	}

	var in Input
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing input %q: %w", path, err)
	}
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("input %q: %w", path, err)
	}
	return &in, nil
}

func (in *Input) validate() error {
	if len(in.Range) > 2 {
		return fmt.Errorf("range takes at most two bounds, got %d", len(in.Range))
	}
	for _, tr := range in.Traces {
		if tr.Name == "" {
			return fmt.Errorf("trace entry without a name")
		}
		for name := range tr.Parameters {
			if !traceParameterNames[name] {
				return fmt.Errorf("unknown trace parameter %q", name)
			}
		}
	}
	return nil
}

// Features builds the ordered feature list: metrics first, then traces.
func (in *Input) Features() []engine.Feature {
	features := make([]engine.Feature, 0, len(in.Metrics)+len(in.Traces))
	for _, name := range in.Metrics {
		features = append(features, engine.Feature{Name: name, Kind: engine.KindMetric})
	}
	for _, tr := range in.Traces {
		names := make([]string, 0, len(tr.Parameters))
		for name := range tr.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)

		params := make([]engine.Parameter, 0, len(names))
		for _, name := range names {
			params = append(params, engine.Parameter{Name: name, Value: tr.Parameters[name]})
		}

		features = append(features, engine.Feature{
			Name:       tr.Name,
			Kind:       engine.KindTrace,
			Parameters: params,
			CopyData:   tr.Copy,
		})
	}
	return features
}

// FilterConfig builds the dispatch filter configuration.
func (in *Input) FilterConfig() filter.Config {
	return filter.Config{
		Range:      in.Range,
		Devices:    in.GPUIndex,
		Kernels:    in.Kernel,
		Expression: in.Expression,
	}
}
