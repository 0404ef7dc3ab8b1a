package format

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// DerefString dereferences s or returns defaultVal when it is nil.
func DerefString(s *string, defaultVal string) string {
	if s != nil {
		return *s
	}
	return defaultVal
}

// DisplayName returns "First Last", falling back to @username and the id.
func DisplayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return tele.ChatID(u.ID).Recipient()
}
