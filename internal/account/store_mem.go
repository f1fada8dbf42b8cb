package account

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrLinkNotFound indicates the requested chat has no account link.
var ErrLinkNotFound = errors.New("account: link not found")

// InMemoryStore is a thread-safe, in-memory implementation of LinkStore.
// It backs tests and storage-less runs; links do not survive a restart.
type InMemoryStore struct {
	mu     sync.RWMutex
	links  map[string]Link      // chat ID → link
	seen   map[int64]time.Time  // update ID → recorded at
	convos map[string]string    // chat ID → conversation ID
	now    func() time.Time
}

// NewInMemoryStore creates a new empty link store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		links:  make(map[string]Link),
		seen:   make(map[int64]time.Time),
		convos: make(map[string]string),
		now:    time.Now,
	}
}

// Compile-time interface check.
var _ LinkStore = (*InMemoryStore)(nil)

// Lookup returns the link for a chat.
func (s *InMemoryStore) Lookup(_ context.Context, chatID string) (Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[chatID]
	if !ok {
		return Link{}, ErrLinkNotFound
	}
	return link, nil
}

// LookupByAccount returns all links belonging to an account.
func (s *InMemoryStore) LookupByAccount(_ context.Context, accountID string) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Link
	for _, link := range s.links {
		if link.AccountID == accountID {
			results = append(results, link)
		}
	}
	sortLinks(results)
	return results, nil
}

// Save inserts or replaces the link for link.ChatID.
func (s *InMemoryStore) Save(_ context.Context, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.links[link.ChatID] = link
	return nil
}

// Delete removes the link for a chat.
func (s *InMemoryStore) Delete(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[chatID]; !ok {
		return ErrLinkNotFound
	}
	delete(s.links, chatID)
	return nil
}

// List returns every link.
func (s *InMemoryStore) List(_ context.Context) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Link, 0, len(s.links))
	for _, link := range s.links {
		results = append(results, link)
	}
	sortLinks(results)
	return results, nil
}

// MarkUpdateSeen records a Telegram update ID in the dedupe journal.
func (s *InMemoryStore) MarkUpdateSeen(_ context.Context, updateID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[updateID]; ok {
		return false, nil
	}
	s.seen[updateID] = s.now()
	return true, nil
}

// PruneUpdatesSeen drops journal entries recorded before the cutoff.
func (s *InMemoryStore) PruneUpdatesSeen(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, id)
			pruned++
		}
	}
	return pruned, nil
}

// Conversation returns the backend conversation ID continued by a chat.
func (s *InMemoryStore) Conversation(_ context.Context, chatID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convos[chatID], nil
}

// SaveConversation records the backend conversation ID a chat continues.
func (s *InMemoryStore) SaveConversation(_ context.Context, chatID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convos[chatID] = conversationID
	return nil
}

// DeleteConversation forgets a chat's conversation.
func (s *InMemoryStore) DeleteConversation(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.convos, chatID)
	return nil
}

// sortLinks orders links most recently linked first, chat ID as tiebreak
// so results are deterministic.
func sortLinks(links []Link) {
	slices.SortFunc(links, func(a, b Link) int {
		if c := b.LinkedAt.Compare(a.LinkedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ChatID, b.ChatID)
	})
}
