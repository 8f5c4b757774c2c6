// Package storage persists the progress record.
//
// A record is always written as a whole document (never patched). Drivers:
//   - "file": JSON document with a .bak copy of the previous version
//   - "sqlite": single-row document table plus a snapshot table
//   - "memory" / "none": nothing survives the process
package storage
