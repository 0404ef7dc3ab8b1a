// Package session serializes Telegram updates per chat and lets handler code
// wait for the next update of its chat in the middle of a conversation.
//
// A Registry keeps one mailbox per chat. The first update of an idle chat
// starts a top-level handler invocation (a turn) on its own goroutine; updates
// arriving while the turn runs are queued and consumed by the turn through
// NextEvent and the helpers built on it. When a turn ends with updates still
// queued, the oldest one starts a fresh turn.
//
// Handlers return ErrLeftChat (usually straight from a helper) to abort the
// conversation when the bot is removed from the chat.
package session
