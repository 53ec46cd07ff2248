// Package agent drives model/tool conversations that build CAD parts.
//
// Invariants:
// - The tool registry is sealed before the first run and never mutated after.
// - Tool calls execute sequentially, in the order the model requested them.
// - Every tool outcome, success or failure, is fed back to the model keyed
//   by its invocation id; a failing tool never aborts the run.
// - Runs are bounded by a round budget and serialized per session.
//
// Usage:
//
//	runner, _ := agent.NewRunner(provider, registry, agent.DefaultConfig(), nil, logger)
//	svc, _ := agent.NewService(runner, registry, nil, nil, logger)
//	result, _ := svc.CreatePart(ctx, "a box 10mm x 20mm x 15mm")
//	_ = result
package agent
