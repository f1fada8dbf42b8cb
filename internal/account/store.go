// Package account defines the association between web-app accounts and
// Telegram chats, with an in-memory store implementation.
package account

import (
	"context"
	"time"
)

// Link associates a web-app account with a Telegram chat. A chat belongs to
// at most one account; an account may be linked from several chats.
type Link struct {
	AccountID   string    `json:"account_id"`
	ChatID      string    `json:"chat_id"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	LinkedAt    time.Time `json:"linked_at"`
}

// LinkStore persists account links plus the bridge's bookkeeping state:
// the update dedupe journal and per-chat conversation continuity.
// Implementations must be safe for concurrent use.
type LinkStore interface {
	// Lookup returns the link for a chat. Returns ErrLinkNotFound when the
	// chat is not linked.
	Lookup(ctx context.Context, chatID string) (Link, error)

	// LookupByAccount returns all links belonging to an account,
	// most recently linked first.
	LookupByAccount(ctx context.Context, accountID string) ([]Link, error)

	// Save inserts or replaces the link for link.ChatID.
	Save(ctx context.Context, link Link) error

	// Delete removes the link for a chat. Returns ErrLinkNotFound when the
	// chat is not linked.
	Delete(ctx context.Context, chatID string) error

	// List returns every link, most recently linked first.
	List(ctx context.Context) ([]Link, error)

	// MarkUpdateSeen records a Telegram update ID in the dedupe journal.
	// Returns true when the ID was recorded now, false when already present.
	MarkUpdateSeen(ctx context.Context, updateID int64) (bool, error)

	// PruneUpdatesSeen drops journal entries recorded before the cutoff and
	// returns how many were removed.
	PruneUpdatesSeen(ctx context.Context, cutoff time.Time) (int, error)

	// Conversation returns the backend conversation ID continued by a chat,
	// or "" when the chat starts fresh.
	Conversation(ctx context.Context, chatID string) (string, error)

	// SaveConversation records the backend conversation ID a chat continues.
	SaveConversation(ctx context.Context, chatID, conversationID string) error

	// DeleteConversation forgets a chat's conversation so the next message
	// starts a new one. Deleting an untracked chat is not an error.
	DeleteConversation(ctx context.Context, chatID string) error
}
