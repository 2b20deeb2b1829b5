package recognition

import "context"

// Recognizer commands sent to a client-side recognizer
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// CommandFunc delivers a recognizer command to the client.
type CommandFunc func(action string) error

// Remote drives a recognizer that runs in the client. Its events arrive
// as client messages and are fed to Controller.HandleEvent by the session.
type Remote struct {
	send CommandFunc
}

// NewRemote returns a Remote that sends commands through send.
func NewRemote(send CommandFunc) *Remote {
	return &Remote{send: send}
}

// Start asks the client to start recognition.
func (r *Remote) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.send(ActionStart)
}

// Stop asks the client to stop recognition.
func (r *Remote) Stop() error {
	return r.send(ActionStop)
}
