// Package tools exposes the platform's remote capabilities as local tools.
//
// Each rpc.Capability becomes a Tool with the same name, description and
// input schema. Calling a tool forwards its arguments unchanged and always
// returns a Result: failures of any kind come back as Result.IsError with a
// readable message, never as a Go error, so one broken tool cannot stop the
// agent's loop.
package tools
