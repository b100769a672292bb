// Package services defines shared helpers consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp message IDs, routing keys, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Reason, which maps a
//     failure onto the quarantine reason reported to operators.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
