// Package store persists the bridge's message ledger and tool call audit in
// SQLite (modernc.org/sqlite, no cgo).
//
// The ledger is a collaborator of the bridge, not part of it: the CLI's
// consumer writes every delivered message and every reconciled send here so
// conversations survive restarts.
package store
