// Package flow implements the setup wizard and the options editor for
// medication and group entries.
//
// A flow is a short-lived session identified by a UUID. Each call to Step
// submits the current form and returns the next step, the same step with
// per-field errors, or a terminal result (create_entry or abort).
//
//	res, _ := flows.Start(ctx)                                   // menu
//	res, _ = flows.Step(ctx, res.FlowID, map[string]any{"next_step_id": "medication"})
//	res, _ = flows.Step(ctx, res.FlowID, map[string]any{"name": "Aspirin", "initial_stock": 60})
//	...
package flow
