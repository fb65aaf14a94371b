package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/client/events"
	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
)

type fakeAPI struct {
	mu      sync.Mutex
	offline bool
	server  map[string]*models.Contact
	backlog []*models.Contact
	calls   []string
	acks    []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{server: make(map[string]*models.Contact)}
}

func (f *fakeAPI) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeAPI) down() error {
	if f.offline {
		return fmt.Errorf("%w: connection refused", common.ErrTransport)
	}
	return nil
}

func (f *fakeAPI) CreateContact(_ context.Context, req protocol.CreateContactRequest) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, "create "+req.ID)
	if _, ok := f.server[req.ID]; ok {
		return nil, fmt.Errorf("%w: taken", common.ErrConflict)
	}
	c := &models.Contact{ID: req.ID, FirstName: req.FirstName, LastName: req.LastName, PhoneNumber: req.PhoneNumber, PendingChange: models.PendingCreated}
	f.server[c.ID] = c
	return c.Clone(), nil
}

func (f *fakeAPI) UpdateContact(_ context.Context, id string, req protocol.UpdateContactRequest) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, "update "+id)
	c, ok := f.server[id]
	if !ok {
		c = &models.Contact{ID: id}
		f.server[id] = c
	}
	if c.EditedAt != nil && !req.EditedAt.Time.After(*c.EditedAt) {
		return c.Clone(), nil
	}
	req.Patch().Apply(c)
	c.EditedAt = req.EditedAt.Ptr()
	c.PendingChange = models.PendingUpdated
	return c.Clone(), nil
}

func (f *fakeAPI) GetContact(_ context.Context, id string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, "get "+id)
	c, ok := f.server[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	return c.Clone(), nil
}

func (f *fakeAPI) DeleteContact(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	f.calls = append(f.calls, "delete "+id)
	if _, ok := f.server[id]; !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	delete(f.server, id)
	return nil
}

func (f *fakeAPI) Ack(_ context.Context, id string, kind protocol.AckKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	f.acks = append(f.acks, id+":"+string(kind))
	return nil
}

func (f *fakeAPI) ListPending(context.Context) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	out := make([]*models.Contact, 0, len(f.backlog))
	for _, c := range f.backlog {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (f *fakeAPI) hasCall(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeAPI) hasAck(ack string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.acks {
		if a == ack {
			return true
		}
	}
	return false
}

func (f *fakeAPI) onServer(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.server[id]
	return ok
}

type readResult struct {
	ev  protocol.Event
	err error
}

type fakeConn struct {
	in     chan readResult
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan readResult, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (protocol.Event, error) {
	select {
	case r := <-c.in:
		return r.ev, r.err
	case <-c.closed:
		return nil, fmt.Errorf("%w: closed", common.ErrTransport)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, ctx.Err())
	}
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(ev protocol.Event) { c.in <- readResult{ev: ev} }

func (c *fakeConn) pushErr(err error) { c.in <- readResult{err: err} }

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	dials int
	conns []*fakeConn
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	d.fail = v
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(context.Context) (events.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, fmt.Errorf("%w: dial refused", common.ErrTransport)
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeTimers records reconnect timers instead of running them.
type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	return func() bool { return true }
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delays)
}

func (f *fakeTimers) delay(i int) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delays[i]
}

// fire runs timer i the way time.AfterFunc would, on its own goroutine.
func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	go fn()
}
