// Package cronjob runs periodic maintenance jobs, such as progress snapshots,
// on robfig/cron.
//
// # Schedule formats
//
//   - Cron expressions: 5-field or 6-field with seconds, e.g. "0 3 * * *".
//   - Descriptors: "@daily", "@every 6h".
//   - Go durations: "6h", "90m".
//   - HH:MM intervals: "02:30" runs every 2 hours 30 minutes.
//
// A "cron:", "interval:" or "every:" prefix forces the interpretation.
//
// Job definitions survive Stop/Start and timezone changes. A run that is
// still executing when its next tick arrives makes that tick a no-op.
package cronjob
