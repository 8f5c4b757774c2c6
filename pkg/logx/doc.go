// Package logx configures feedbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Component tagging via Named("scheduler"), with per-component levels
package logx
