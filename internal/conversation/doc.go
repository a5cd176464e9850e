// Package conversation holds the local view of chats the bridge takes part in.
//
// # Chat identifiers
//
// A ChatID names one conversation. It is a closed sum type with two variants:
//
//	conversation.Channel{Name: "general"}
//	conversation.DirectMessage{CounterpartID: "agent-7"}
//
// Channels are keyed by their human-readable name, direct messages by the
// opaque id of the other participant. Both variants are comparable and can be
// used as map keys. Key and ParseKey convert to and from a flat string for
// storage.
//
// # Log
//
// Log keeps the merged message list of every chat. Locally initiated sends
// are added as optimistic records with a synthetic "local-" id. When the
// platform confirms a message, Merge replaces the first optimistic record
// with the same sender and content instead of appending a second copy.
// Confirmed ids are merged at most once.
//
// # Broadcaster
//
// Broadcaster fans out log changes to subscribers of a chat. Slow subscribers
// miss updates rather than blocking the publisher.
package conversation
