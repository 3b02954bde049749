// Package registry tracks the live connection per user and owns all outbound
// delivery. Every frame leaves through a connection's writer goroutine, so no
// two goroutines ever write the same transport.
package registry

import "sync"

// Transport is the writable half of a client connection. Send must be safe
// to call from the connection's writer goroutine only; the registry upholds
// that.
type Transport interface {
	Send(frame any) error
	Close() error
}

// outboundQueueSize bounds the per-connection send queue. Overflow drops the
// oldest frame: for 60 Hz snapshots the latest state wins, and delivered
// frames keep their order.
const outboundQueueSize = 64

// Conn is one user's registered connection.
type Conn struct {
	userID    int64
	transport Transport
	outbound  chan any
	done      chan struct{}
	once      sync.Once
}

// UserID returns the user this connection authenticated as.
func (c *Conn) UserID() int64 {
	return c.userID
}

// Done returns a channel closed once the connection shuts down, whether by
// supersession, unregistration, or a failed write. Readers use it to stop
// reacting to a transport that is already dead.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) enqueue(frame any) {
	for {
		select {
		case c.outbound <- frame:
			return
		default:
			select {
			case <-c.outbound:
			default:
			}
		}
	}
}

func (c *Conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop drains the outbound queue into the transport. On shutdown it
// flushes whatever is queued, so farewell frames still reach the peer.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			for {
				select {
				case frame := <-c.outbound:
					if c.transport.Send(frame) != nil {
						c.transport.Close()
						return
					}
				default:
					c.transport.Close()
					return
				}
			}
		case frame := <-c.outbound:
			if c.transport.Send(frame) != nil {
				c.shutdown()
				c.transport.Close()
				return
			}
		}
	}
}

// Registry maps users to their single live connection.
type Registry struct {
	mu    sync.Mutex
	conns map[int64]*Conn
}

func New() *Registry {
	return &Registry{conns: make(map[int64]*Conn)}
}

// Register installs a connection for the user and starts its writer. Any
// prior connection is evicted: it receives the farewell frame (when not
// nil), flushes, and closes. The caller learns whether an eviction happened
// so it can skip disconnect handling for the old reader.
func (r *Registry) Register(userID int64, transport Transport, farewell any) (conn *Conn, evicted bool) {
	c := &Conn{
		userID:    userID,
		transport: transport,
		outbound:  make(chan any, outboundQueueSize),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	old := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()

	if old != nil {
		if farewell != nil {
			old.enqueue(farewell)
		}
		old.shutdown()
	}
	go c.writeLoop()
	return c, old != nil
}

// Unregister removes the connection if it is still the user's live one and
// reports whether it was. A false return means the connection was already
// superseded and the user is still online elsewhere.
func (r *Registry) Unregister(userID int64, c *Conn) bool {
	r.mu.Lock()
	current := r.conns[userID]
	if current == c {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	c.shutdown()
	return current == c
}

// Unicast queues a frame for the user's live connection. It reports whether
// the user was online; sending to an offline user is a silent no-op.
func (r *Registry) Unicast(userID int64, frame any) bool {
	r.mu.Lock()
	c := r.conns[userID]
	r.mu.Unlock()

	if c == nil {
		return false
	}
	c.enqueue(frame)
	return true
}

// Broadcast queues a frame for every listed user, skipping offline ones.
func (r *Registry) Broadcast(userIDs []int64, frame any) {
	for _, userID := range userIDs {
		r.Unicast(userID, frame)
	}
}

// Online reports whether the user has a live connection.
func (r *Registry) Online(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID] != nil
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll shuts every connection down. Used at server teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[int64]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}
