package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/registry"
	"github.com/accelprof/dispatch-profiler/internal/timesync"
)

// Emitter renders one span per collected dispatch: the span covers
// dispatch-to-complete, named after the kernel, with counter values as
// attributes.
type Emitter struct {
	tracer    trace.Tracer
	converter *timesync.Converter
}

// NewEmitter creates an Emitter using tracer and the timestamp converter.
func NewEmitter(tracer trace.Tracer, converter *timesync.Converter) *Emitter {
	return &Emitter{tracer: tracer, converter: converter}
}

// EmitDispatch emits the span for a claimed context. Contexts without a
// timing record are skipped: there is no honest span interval for them.
func (e *Emitter) EmitDispatch(entry *registry.Context) {
	rec := entry.Record
	if rec == nil {
		return
	}
	complete := rec.Complete.Load()
	if complete == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("dispatch.index", int64(entry.Index)),
		attribute.Int64("dispatch.queue_index", int64(entry.QueueIndex)),
		attribute.Int64("dispatch.device", int64(entry.DeviceIndex)),
		attribute.Int64("dispatch.begin_ns", int64(rec.Begin)),
		attribute.Int64("dispatch.end_ns", int64(rec.End)),
	}
	attrs = append(attrs, e.counterAttributes(entry)...)

	_, span := e.tracer.Start(context.Background(), entry.KernelName,
		trace.WithTimestamp(e.converter.ToWallClock(rec.Dispatch)),
		trace.WithAttributes(attrs...),
	)
	span.End(trace.WithTimestamp(e.converter.ToWallClock(complete)))
}

func (e *Emitter) counterAttributes(entry *registry.Context) []attribute.KeyValue {
	if entry.Session == nil {
		return nil
	}
	results := entry.Session.Results()
	if len(results) != len(entry.Features) {
		return nil
	}

	var attrs []attribute.KeyValue
	for i := range entry.Features {
		if results[i].Kind == engine.DataUint64 {
			attrs = append(attrs, attribute.Int64("counter."+entry.Features[i].Name, int64(results[i].Value)))
		}
	}
	return attrs
}
