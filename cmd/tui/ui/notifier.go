package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
)

// changedMsg tells the model to re-read the controller snapshot.
type changedMsg struct{}

// Notifier bridges controller events into the bubbletea loop. Bursts of
// events collapse into one pending notification since the model always
// redraws from a fresh snapshot.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Listen is a chatsvc.Listener.
func (n *Notifier) Listen(chatsvc.Event) {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the next change.
func (n *Notifier) Wait() tea.Cmd {
	return func() tea.Msg {
		<-n.ch
		return changedMsg{}
	}
}
