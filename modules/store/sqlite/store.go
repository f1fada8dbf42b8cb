package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/telegate/telegate/internal/account"
)

// timeLayout is a fixed-width UTC timestamp format. Unlike RFC3339Nano it
// never trims trailing zeros, so lexicographic order of stored values matches
// chronological order and SQL ORDER BY / range comparisons stay correct.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Lookup returns the link for a chat. Returns account.ErrLinkNotFound when
// the chat is not linked.
func (s *linkStore) Lookup(ctx context.Context, chatID string) (account.Link, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, account_id, username, display_name, linked_at
		FROM links
		WHERE chat_id = ?`,
		chatID,
	)

	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Link{}, account.ErrLinkNotFound
		}
		return account.Link{}, err
	}
	return link, nil
}

// LookupByAccount returns all links belonging to an account, most recently
// linked first.
func (s *linkStore) LookupByAccount(ctx context.Context, accountID string) ([]account.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, account_id, username, display_name, linked_at
		FROM links
		WHERE account_id = ?
		ORDER BY linked_at DESC, chat_id ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lookup by account: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLinks(rows)
}

// Save inserts or replaces the link for link.ChatID. A zero LinkedAt is
// filled with the current time.
func (s *linkStore) Save(ctx context.Context, link account.Link) error {
	linkedAt := link.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO links (chat_id, account_id, username, display_name, linked_at)
		VALUES (?, ?, ?, ?, ?)`,
		link.ChatID, link.AccountID, link.Username, link.DisplayName,
		linkedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save link: %w", err)
	}
	return nil
}

// Delete removes the link for a chat. Returns account.ErrLinkNotFound when
// the chat is not linked.
func (s *linkStore) Delete(ctx context.Context, chatID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM links WHERE chat_id = ?", chatID)
	if err != nil {
		return fmt.Errorf("sqlite: delete link: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return account.ErrLinkNotFound
	}
	return nil
}

// List returns every link, most recently linked first.
func (s *linkStore) List(ctx context.Context) ([]account.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, account_id, username, display_name, linked_at
		FROM links
		ORDER BY linked_at DESC, chat_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLinks(rows)
}

// MarkUpdateSeen records a Telegram update ID in the dedupe journal.
// Returns true when the ID was recorded now, false when already present.
func (s *linkStore) MarkUpdateSeen(ctx context.Context, updateID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO updates_seen (update_id, seen_at) VALUES (?, ?)",
		updateID, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark update seen: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n > 0, nil
}

// PruneUpdatesSeen drops journal entries recorded before the cutoff and
// returns how many were removed.
func (s *linkStore) PruneUpdatesSeen(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM updates_seen WHERE seen_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune updates seen: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// Conversation returns the backend conversation ID continued by a chat, or
// "" when the chat starts fresh.
func (s *linkStore) Conversation(ctx context.Context, chatID string) (string, error) {
	var conversationID string
	err := s.db.QueryRowContext(ctx,
		"SELECT conversation_id FROM conversations WHERE chat_id = ?", chatID,
	).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("sqlite: get conversation: %w", err)
	}
	return conversationID, nil
}

// SaveConversation records the backend conversation ID a chat continues.
func (s *linkStore) SaveConversation(ctx context.Context, chatID, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations (chat_id, conversation_id, updated_at)
		VALUES (?, ?, ?)`,
		chatID, conversationID, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save conversation: %w", err)
	}
	return nil
}

// DeleteConversation forgets a chat's conversation. Deleting an untracked
// chat is not an error.
func (s *linkStore) DeleteConversation(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (account.Link, error) {
	var (
		link        account.Link
		linkedAtStr string
	)

	if err := s.Scan(&link.ChatID, &link.AccountID, &link.Username, &link.DisplayName, &linkedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Link{}, err
		}
		return account.Link{}, fmt.Errorf("sqlite: scan link: %w", err)
	}

	if linkedAtStr != "" {
		t, err := time.Parse(time.RFC3339Nano, linkedAtStr)
		if err != nil {
			return account.Link{}, fmt.Errorf("sqlite: parse linked_at %q: %w", linkedAtStr, err)
		}
		link.LinkedAt = t
	}

	return link, nil
}

func scanLinks(rows *sql.Rows) ([]account.Link, error) {
	var links []account.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan links rows: %w", err)
	}

	return links, nil
}
