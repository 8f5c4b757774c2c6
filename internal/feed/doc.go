// Package feed reads the ordered content feed that the scheduler publishes from.
//
// The feed file is the source of truth and may be edited while the bot runs,
// so every Run() call reloads it. Items are addressed by index only; a "chain"
// is a run of consecutive items whose chain flag is set, closed by the first
// item without it.
package feed
