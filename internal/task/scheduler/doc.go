// Package scheduler publishes feed items at daily time slots.
//
// A single timer is armed for the earliest pending task. At most one task
// body runs at a time; a task that fires while another is still publishing
// waits for it. After each task the committed progress is written through the
// stats store and the queue is replenished (bounded, iterative) so that up to
// MaxPendingBatches runs are always pending.
//
// oracle.go holds the pure slot arithmetic; spec_parse.go parses the cron or
// interval expressions used by periodic maintenance jobs.
package scheduler
