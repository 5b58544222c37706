// Package plugin holds the value objects that flow through the generation
// pipeline and the pure functions that interpret model output.
//
// Model responses arrive as loosely shaped JSON objects. ParseMetadata and
// NormalizeReview convert them into typed values once, at the boundary, so
// the rest of the pipeline never inspects raw maps.
package plugin
