package session

import "context"

// Frame is one message from the client transport: either a binary audio
// chunk or a text control command.
type Frame struct {
	Binary bool
	Data   []byte
}

// ClientConn is the orchestrator's view of the bidirectional client
// transport. The server adapts its WebSocket connection to this interface;
// tests supply scripted implementations.
//
// Read must honour ctx cancellation so the session can shut down while a
// read is in flight. Send marshals v to JSON and writes it as a text frame.
type ClientConn interface {
	Read(ctx context.Context) (Frame, error)
	Send(ctx context.Context, v any) error
}
