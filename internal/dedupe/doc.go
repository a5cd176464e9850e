// Package dedupe remembers recently seen inbound event ids so that events
// redelivered after a reconnect are processed once.
package dedupe
