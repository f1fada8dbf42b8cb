package channel

import (
	"strings"

	"github.com/telegate/telegate/pkg/message"
)

// AllowList optionally restricts which users and groups may interact with a
// channel. An empty or nil AllowList admits everyone; authorization then
// falls wholly to account linking, which is the normal deployment. A
// non-empty list is an additional gate in front of linking.
type AllowList struct {
	users  map[string]struct{}
	groups map[string]struct{}
}

// NewAllowList creates an AllowList with O(1) lookups. Keys are trimmed and
// lowercased at construction time so that IsAllowed can use direct map lookups.
func NewAllowList(users, groups []string) *AllowList {
	a := &AllowList{
		users:  make(map[string]struct{}, len(users)),
		groups: make(map[string]struct{}, len(groups)),
	}
	for _, u := range users {
		if u = normalize(u); u != "" {
			a.users[u] = struct{}{}
		}
	}
	for _, g := range groups {
		if g = normalize(g); g != "" {
			a.groups[g] = struct{}{}
		}
	}
	return a
}

// IsAllowed reports whether the message sender or chat is permitted.
//
// Rules:
//   - If both lists are empty, allow; linking decides who the bot talks to.
//   - If the sender's ID or username matches a user entry, allow.
//   - If the chat's ID matches a group entry, allow.
//   - Otherwise deny.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	if a == nil || (len(a.users) == 0 && len(a.groups) == 0) {
		return true
	}

	// Empty keys are filtered at construction, so a blank sender field can
	// never match.
	if _, ok := a.users[normalize(msg.Sender.ID)]; ok {
		return true
	}
	if _, ok := a.users[normalize(msg.Sender.Username)]; ok {
		return true
	}
	if _, ok := a.groups[normalize(msg.Chat.ID)]; ok {
		return true
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
