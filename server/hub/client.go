package hub

// PeerID identifies a connected peer for the lifetime of its connection.
// In practice it is the remote socket address, so it may be reused once the
// previous owner has disconnected.
type PeerID string

// Client is the coordinator's view of one live connection.
type Client interface {
	Identity() PeerID
	// Session tells apart successive connections that reuse an identity.
	Session() string
	// Write sends raw bytes to the peer. It is only called from the
	// coordinator goroutine.
	Write(p []byte) error
	// Release gives back the coordinator's share of the connection.
	Release()
}
