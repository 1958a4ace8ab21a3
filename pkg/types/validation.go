package types

import (
	"encoding/json"
	"strings"
)

// MaxMessageRunes bounds the content of a single chat message. Longer
// payloads are truncated at this many runes, not rejected.
const MaxMessageRunes = 2000

// MaxVerbLength bounds a notification verb.
const MaxVerbLength = 140

// inboundFrame is the accepted client payload shape. Clients may send
// {"message": ...} or {"text": ...}; raw text is the fallback.
type inboundFrame struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

// ExtractMessageText decodes one inbound frame into message content.
// Undecodable JSON falls back to treating the whole frame as raw text.
// The result is whitespace-trimmed and truncated to MaxMessageRunes;
// an empty result means the frame carries nothing worth persisting.
func ExtractMessageText(data []byte) string {
	text := string(data)
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") {
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err == nil {
			text = frame.Message
			if text == "" {
				text = frame.Text
			}
		}
	}
	return TruncateMessage(strings.TrimSpace(text))
}

// TruncateMessage enforces the message length bound in runes.
func TruncateMessage(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxMessageRunes {
		return s
	}
	return string(runes[:MaxMessageRunes])
}

// IsValidCourseID reports whether an id can name a room.
func IsValidCourseID(id int64) bool { return id > 0 }

// IsValidRole reports whether a role string is one the system knows.
func IsValidRole(r Role) bool { return r == RoleStudent || r == RoleTeacher }
