package rigelnet

import "net"

// EventSink receives the transport's connection lifecycle notifications.
// Implementations should return quickly; they are invoked synchronously
// from within Update.
type EventSink interface {
	// OnBadPassphrase fires on the server when a Connect packet's
	// passphrase does not match; the attempt is dropped, never promoted to
	// a slot.
	OnBadPassphrase(from net.Addr)
	// OnConnectAttemptFailed fires on the client when its own Connect is
	// rejected (bad passphrase) or times out without a ConnectResponse.
	OnConnectAttemptFailed(reason DisconnectReason)
	// OnConnected fires once a peer reaches the Connected phase.
	OnConnected(clientIndex int)
	// OnDisconnected fires once a peer leaves Connected, with the reason.
	OnDisconnected(clientIndex int, reason DisconnectReason)
}

// NopEventSink implements EventSink with no-ops, for callers that only care
// about a subset of events and want to embed it to satisfy the rest.
type NopEventSink struct{}

func (NopEventSink) OnBadPassphrase(net.Addr)                    {}
func (NopEventSink) OnConnectAttemptFailed(DisconnectReason)     {}
func (NopEventSink) OnConnected(int)                             {}
func (NopEventSink) OnDisconnected(int, DisconnectReason)        {}
