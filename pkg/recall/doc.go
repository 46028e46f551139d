// Package recall wires the trace store and an LLM provider into a
// memory-augmented conversation loop.
//
// The Assembler turns full-text search matches into a context message,
// SmartAgent runs the retrieve/generate/log pipeline per turn, and the
// Scheduler periodically re-summarizes active sessions.
//
// Invariants:
//   - Every turn leaves a complete pair of traces, even when generation fails.
//   - Retrieval happens before the user turn is logged, so the current
//     utterance never recalls itself.
//   - Summarization failures never fail the turn that triggered them.
package recall
