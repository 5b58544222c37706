package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := GenerationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("generation.id", id))
	}
	if name := PluginNameFromContext(ctx); name != "" {
		fields = append(fields, zap.String("plugin.name", name))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}

	return fields
}

type generationCtxKey struct{}
type pluginCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// WithGenerationID tags the context with the id of an in-flight generation.
func WithGenerationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, generationCtxKey{}, id)
}

// GenerationIDFromContext returns the generation id or "".
func GenerationIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(generationCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithPluginName tags the context with the sanitized plugin name.
func WithPluginName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, pluginCtxKey{}, name)
}

// PluginNameFromContext returns the plugin name or "".
func PluginNameFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(pluginCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds an HTTP request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
