package hub

// mailbox is an unbounded FIFO between many producers and the coordinator.
// Producers never wait on the coordinator: pump keeps accepting events and
// buffers them while the coordinator is busy writing to slow peers.
type mailbox struct {
	in   chan Event
	out  chan Event
	done chan struct{}
}

func newMailbox(done chan struct{}) *mailbox {
	m := &mailbox{
		in:   make(chan Event),
		out:  make(chan Event),
		done: done,
	}
	go m.pump()
	return m
}

func (m *mailbox) send(ev Event) error {
	select {
	case <-m.done:
		return ErrHubClosed
	default:
	}

	select {
	case m.in <- ev:
		return nil
	case <-m.done:
		return ErrHubClosed
	}
}

func (m *mailbox) pump() {
	var queue []Event
	defer func() {
		// the coordinator will never see these
		for _, ev := range queue {
			if c, ok := ev.(Connected); ok && c.Client != nil {
				c.Client.Release()
			}
		}
	}()

	for {
		var (
			out  chan Event
			next Event
		)
		if len(queue) > 0 {
			out = m.out
			next = queue[0]
		}

		select {
		case ev := <-m.in:
			queue = append(queue, ev)
		case out <- next:
			queue[0] = nil
			queue = queue[1:]
		case <-m.done:
			return
		}
	}
}
