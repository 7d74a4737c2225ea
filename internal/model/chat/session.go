package chat

import "unicode/utf8"

// TitleMaxRunes bounds the history title derived from the first user message.
const TitleMaxRunes = 12

// Session captures one locally persisted conversation.
type Session struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// HistoryEntry is one row of the history index, most recent first.
type HistoryEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// FirstUserMessage returns the earliest user message of the thread.
func FirstUserMessage(messages []Message) (Message, bool) {
	for _, msg := range messages {
		if msg.Role == RoleUser {
			return msg, true
		}
	}
	return Message{}, false
}

// DeriveTitle truncates text to TitleMaxRunes characters, adding "..." when it was longer.
func DeriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= TitleMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleMaxRunes]) + "..."
}

// TitleOf returns the title for a thread, or "" when it has no user message yet.
func TitleOf(messages []Message) string {
	first, ok := FirstUserMessage(messages)
	if !ok {
		return ""
	}
	return DeriveTitle(first.Text)
}
