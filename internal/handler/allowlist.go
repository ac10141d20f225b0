package handler

import (
	"strings"

	"github.com/flemzord/tgbridge/internal/core"
)

// AllowList restricts which users may trigger handlers. An empty list
// denies everyone.
type AllowList struct {
	users map[string]struct{}
}

// NewAllowList creates an AllowList. Entries are trimmed and lowercased.
func NewAllowList(users []string) *AllowList {
	a := &AllowList{users: make(map[string]struct{}, len(users))}
	for _, u := range users {
		if u = normalize(u); u != "" {
			a.users[u] = struct{}{}
		}
	}
	return a
}

// IsAllowed reports whether the event's user is on the list.
func (a *AllowList) IsAllowed(ev core.Event) bool {
	if a == nil || len(a.users) == 0 {
		return false
	}
	_, ok := a.users[normalize(ev.UserID())]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
