// Package amd implements answering machine detection for outbound calls.
//
// The far end of a call is classified as a human, an answering machine, an
// indeterminate result or a hangup by analysing the live audio stream while a
// greeting prompt is played. The pipeline has three stages:
//
//   - [Analyzer] classifies each fixed-size linear PCM frame as [Silence] or
//     [Voice] by comparing its mean absolute amplitude with a threshold.
//   - [Tracker] folds consecutive frames of the same class into timed runs
//     and emits run-start, run-end and tick [Event] values.
//   - [Engine] holds the per-call [Session] state and evaluates a
//     priority-ordered rule table on every event until a [Verdict] is reached.
//
// [Detector] composes the three stages for one call, and [Run] drives a
// Detector from a [Source] that yields frames, hangup and stream-end signals
// in arrival order.
//
// A [Config] is validated once and copied into every Detector built from it,
// so the same value can be shared by any number of concurrent calls. A
// Detector itself belongs to exactly one call and must not be used from more
// than one goroutine.
package amd
