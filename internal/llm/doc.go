// Package llm is the model backend used by the synthesizer.
//
// A Client turns a prompt into completion text. The langchaingo-backed
// implementation adds rate limiting and retries with exponential backoff;
// errors are classified as TransientError (retried) or FatalError (returned
// immediately).
//
// The package also carries the helpers that pull structured content out of
// free-form model replies: ExtractObject for JSON and ExtractCode for fenced
// code blocks.
package llm
