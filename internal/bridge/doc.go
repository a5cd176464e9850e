// Package bridge translates between the platform's live message events and
// local conversations.
//
// Inbound message.new frames are filtered and normalized into
// conversation.Message values keyed by a conversation.ChatID, then handed to
// a Consumer. The agent's own messages are never handed back to it; they only
// confirm the optimistic copies created by Send.
//
// Display names for agents and channels come from a Directory fetched once
// at Start. A failed fetch leaves the cache empty and labels fall back to
// whatever the event carries, then to raw ids.
package bridge
