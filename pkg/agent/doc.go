// Package agent abstracts LLM chat providers behind a single interface.
//
// Invariants:
// - Providers are stateless; conversation state lives with the caller.
// - Every call takes a context and honors its deadline and cancellation.
// - Retries apply only to transient failures (rate limits, server errors).
//
// Usage:
//
//	p, _ := agent.NewProvider("anthropic", apiKey)
//	resp, _ := p.Generate(ctx, agent.Request{
//		Model:    "claude-sonnet-4-20250514",
//		Messages: []agent.Message{{Role: "user", Content: "hello"}},
//	})
//	_ = resp
package agent
