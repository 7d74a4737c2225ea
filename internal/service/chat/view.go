package chat

import "github.com/zhouzirui/medrag-chat/internal/model/chat"

// MessageView is a message plus everything a shell needs to draw it.
type MessageView struct {
	chat.Message
	// Visible is the text to draw now; a prefix of Text while animating.
	Visible   string `json:"visible"`
	Animating bool   `json:"animating"`
	// ReferencesAvailable gates the reference-cases toggle.
	ReferencesAvailable bool `json:"referencesAvailable"`
	ReferencesExpanded  bool `json:"referencesExpanded"`
}

// View is a consistent snapshot of the controller.
type View struct {
	SessionID    string              `json:"sessionId"`
	Title        string              `json:"title"`
	State        State               `json:"state"`
	InputEnabled bool                `json:"inputEnabled"`
	Sending      bool                `json:"sending"`
	Messages     []MessageView       `json:"messages"`
	History      []chat.HistoryEntry `json:"history"`
}
