package hub

// Event is everything a reader task can tell the coordinator.
type Event interface {
	peer() PeerID
}

// Connected registers Client under Peer.
type Connected struct {
	Peer   PeerID
	Client Client
}

// Disconnected unregisters Peer.
type Disconnected struct {
	Peer PeerID
}

// Message carries one chunk read from Peer. Chunks are not framed messages.
type Message struct {
	Peer    PeerID
	Payload []byte
}

// peersQuery asks the coordinator for a snapshot of the registry.
type peersQuery struct {
	reply chan []PeerID
}

func (e Connected) peer() PeerID    { return e.Peer }
func (e Disconnected) peer() PeerID { return e.Peer }
func (e Message) peer() PeerID      { return e.Peer }
func (e peersQuery) peer() PeerID   { return "" }

// EventName is a short, stable name for ev, used in logs and metric labels.
func EventName(ev Event) string {
	switch ev.(type) {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Message:
		return "message"
	default:
		return "query"
	}
}
