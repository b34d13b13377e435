// Package otel wires OpenTelemetry tracing for the build engine. Command
// lifecycle events from the console bus become spans; everything is disabled
// when no collector endpoint is configured.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/bunnypak/buck2/internal/console"
	"github.com/bunnypak/buck2/internal/reqid"
)

// Setup configures OpenTelemetry and subscribes span emitters to the console
// bus. If endpoint is empty, no telemetry is configured.
func Setup(bus *console.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("buck")}
	sub.register(bus)

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer       trace.Tracer
	commandSpans sync.Map // invocation id -> trace.Span
}

func (s *subscriber) register(bus *console.Bus) {
	bus.Subscribe(func(ctx context.Context, event any) {
		switch e := event.(type) {
		case console.CommandStart:
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "command."+e.Name)
			span.SetAttributes(
				attribute.String("command.name", e.Name),
				attribute.StringSlice("command.args", e.Args),
			)
			s.commandSpans.Store(rid, span)
		case console.CommandFinish:
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.commandSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			if e.Err != nil {
				span.RecordError(e.Err)
			}
			span.SetAttributes(attribute.Int64("command.duration_ms", e.Duration.Milliseconds()))
			span.End()
		}
	})
}
