package discovery

import "time"

// Relay is one relay process visible on the local network.
type Relay struct {
	Id   string
	Name string
	Addr string
}

func NewRelay(id string, name string, addr string) Relay {
	return Relay{Id: id, Name: name, Addr: addr}
}

type Registry interface {
	// Register advertises relay until Unregister is called.
	Register(relay Relay) error
	Unregister() error
	// Lookup returns the relays announced by other processes that answered
	// within timeout.
	Lookup(timeout time.Duration) ([]Relay, error)
}
