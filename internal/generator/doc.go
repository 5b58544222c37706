// Package generator drives plugin generation from a feature description to
// an installed plugin.
//
// An Orchestrator runs the pipeline in two halves separated by a human
// approval gate:
//
//	Start:   validate -> metadata -> documentation -> preview -> (pending)
//	Confirm: [refine] -> code -> review/fix loop -> scan -> write -> install
//
// With auto-approve enabled, Start runs both halves in one call.
//
// Only one generation runs at a time. The in-flight flag and the single
// pending proposal are guarded by one mutex; model and installer calls run
// outside it. Progress is reported through an events.Sink.
package generator
