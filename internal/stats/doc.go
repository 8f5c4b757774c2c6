// Package stats is the progress store: the last published feed index, rerun
// bookkeeping and per-item engagement counters.
//
// The record is loaded lazily on first access and every mutation is written
// through to the backend before it becomes visible. A failed write leaves the
// in-memory record unchanged.
package stats
