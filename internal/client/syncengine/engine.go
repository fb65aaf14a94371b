// Package syncengine keeps the local Record Store and the server converging.
//
// The Engine owns one event channel connection. Every time it connects it
// pushes the local pending queue, then pulls the server backlog. While
// connected it applies pushed events and acknowledges them. When the channel
// drops, exactly one reconnect is scheduled; reconnecting never gives up.
//
// User operations go to the store first and are then pushed once, best
// effort. A failed push leaves the record pending for the next connect.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/contactsync/internal/client/events"
	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
	"github.com/google/uuid"
)

// Store is the part of the Record Store the engine drives.
type Store interface {
	Insert(ctx context.Context, c *models.Contact) error
	Edit(ctx context.Context, id string, patch models.Patch, editedAt time.Time) (*models.Contact, error)
	MarkDeleted(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Contact, error)
	ApplyRemote(ctx context.Context, c *models.Contact, change models.PendingChange) (bool, error)
	ConfirmRemote(ctx context.Context, c *models.Contact) (bool, error)
	ConfirmDeleted(ctx context.Context, id string) (bool, error)
	ListVisible(ctx context.Context) ([]*models.Contact, error)
	ListNeedingSync(ctx context.Context) ([]*models.Contact, error)
}

// API is the REST surface of the server.
type API interface {
	CreateContact(ctx context.Context, req protocol.CreateContactRequest) (*models.Contact, error)
	UpdateContact(ctx context.Context, id string, req protocol.UpdateContactRequest) (*models.Contact, error)
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	DeleteContact(ctx context.Context, id string) error
	Ack(ctx context.Context, id string, kind protocol.AckKind) error
	ListPending(ctx context.Context) ([]*models.Contact, error)
}

type Options struct {
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	// PingInterval of zero disables keepalive pings.
	PingInterval time.Duration
}

// Report summarizes one resync pass.
type Report struct {
	Pushed int
	Failed int
	Pulled int
}

type Engine struct {
	store  Store
	api    API
	dialer events.Dialer
	logger logging.Logger

	pingInterval time.Duration
	backoff      *backoff.ExponentialBackOff

	now       func() time.Time
	newID     func() string
	afterFunc func(d time.Duration, f func()) (stop func() bool)

	mu               sync.Mutex
	state            State
	conn             events.Conn
	running          bool
	stopped          bool
	reconnectPending bool
	stopTimer        func() bool
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup

	syncMu sync.Mutex
}

func New(store Store, api API, dialer events.Dialer, opts Options, logger logging.Logger) *Engine {
	initial := opts.ReconnectDelay
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxDelay := opts.ReconnectMaxDelay
	if maxDelay < initial {
		maxDelay = initial
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return &Engine{
		store:        store,
		api:          api,
		dialer:       dialer,
		logger:       logger.With("module", "sync_engine"),
		pingInterval: opts.PingInterval,
		backoff:      b,
		now:          time.Now,
		newID:        uuid.NewString,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		state: StateDisconnected,
	}
}

// Start begins connecting in the background. The engine runs until Stop is
// called or ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running || e.stopped {
		return errors.New("sync engine already started")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	e.wg.Add(1)
	go e.connect()
	return nil
}

// Stop closes the connection, cancels the pending reconnect and waits for
// background work to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	if e.stopTimer != nil {
		e.stopTimer()
		e.stopTimer = nil
	}
	e.reconnectPending = false
	conn := e.conn
	e.mu.Unlock()

	e.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	e.wg.Wait()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// spawn runs fn in the background for as long as the engine is running. It
// reports false when the engine is not running.
func (e *Engine) spawn(fn func(ctx context.Context)) bool {
	e.mu.Lock()
	if !e.running || e.stopped {
		e.mu.Unlock()
		return false
	}
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
	return true
}

// connect dials, then serves the connection until it drops. Caller has
// already counted it in wg.
func (e *Engine) connect() {
	defer e.wg.Done()

	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	e.setState(StateConnecting)
	conn, err := e.dialer.Dial(ctx)
	if err != nil {
		e.setState(StateDisconnected)
		e.logger.Warn(ctx, "event channel connect failed", "error", err)
		e.scheduleReconnect()
		return
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		_ = conn.Close()
		return
	}
	e.conn = conn
	e.state = StateConnected
	e.backoff.Reset()
	e.mu.Unlock()
	e.logger.Info(ctx, "event channel connected")

	connCtx, cancel := context.WithCancel(ctx)
	if e.pingInterval > 0 {
		e.spawn(func(context.Context) { e.keepalive(connCtx, conn) })
	}
	e.spawn(func(ctx context.Context) {
		if _, err := e.resync(ctx); err != nil {
			e.logger.Warn(ctx, "resync incomplete", "error", err)
		}
	})

	e.readLoop(connCtx, conn)
	cancel()
	_ = conn.Close()

	e.mu.Lock()
	e.conn = nil
	e.state = StateDisconnected
	e.mu.Unlock()

	if ctx.Err() == nil {
		e.logger.Warn(ctx, "event channel disconnected")
		e.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer unless one is already armed.
func (e *Engine) scheduleReconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.reconnectPending || e.ctx.Err() != nil {
		return
	}
	d := e.backoff.NextBackOff()
	if d == backoff.Stop {
		d = e.backoff.MaxInterval
	}
	e.reconnectPending = true
	e.stopTimer = e.afterFunc(d, e.reconnect)
	e.logger.Debug(e.ctx, "reconnect scheduled", "delay", d)
}

func (e *Engine) reconnect() {
	e.mu.Lock()
	e.reconnectPending = false
	e.stopTimer = nil
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	e.connect()
}

func (e *Engine) keepalive(ctx context.Context, conn events.Conn) {
	ticker := time.NewTicker(e.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, e.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				e.logger.Warn(ctx, "keepalive ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (e *Engine) readLoop(ctx context.Context, conn events.Conn) {
	for {
		ev, err := conn.Read(ctx)
		if err != nil {
			if events.Recoverable(err) {
				e.logger.Warn(ctx, "dropping event", "error", err)
				continue
			}
			if ctx.Err() == nil {
				e.logger.Debug(ctx, "event channel read failed", "error", err)
			}
			return
		}
		e.handleEvent(ctx, ev)
	}
}

// handleEvent applies one pushed event to the store and acknowledges it.
func (e *Engine) handleEvent(ctx context.Context, ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Hello:
		e.logger.Debug(ctx, "server hello", "ts", ev.TS)
	case protocol.ContactCreated:
		e.applyRemote(ctx, ev.Contact(), protocol.AckCreated)
	case protocol.ContactUpdated:
		e.applyRemote(ctx, ev.Contact(), protocol.AckUpdated)
	case protocol.ContactDeleted:
		e.removeRemote(ctx, ev.ID)
	}
}

func (e *Engine) applyRemote(ctx context.Context, c *models.Contact, kind protocol.AckKind) {
	applied, err := e.store.ApplyRemote(ctx, c, kind.PendingChange())
	if err != nil {
		e.logger.Error(ctx, "failed to apply remote contact", "id", c.ID, "error", err)
		return
	}
	if !applied {
		e.logger.Debug(ctx, "local contact is newer, kept", "id", c.ID)
	}
	e.ack(c.ID, kind)
}

func (e *Engine) removeRemote(ctx context.Context, id string) {
	if err := e.store.HardDelete(ctx, id); err != nil && !errors.Is(err, common.ErrNotFound) {
		e.logger.Error(ctx, "failed to remove contact", "id", id, "error", err)
		return
	}
	e.ack(id, protocol.AckDeleted)
}

// ack confirms a change to the server without waiting for the answer. A lost
// ack is recovered by the backlog pull on the next connect.
func (e *Engine) ack(id string, kind protocol.AckKind) {
	e.spawn(func(ctx context.Context) {
		if err := e.api.Ack(ctx, id, kind); err != nil {
			e.logger.Debug(ctx, "ack failed", "id", id, "kind", kind, "error", err)
		}
	})
}

// Sync runs the push and pull passes now and waits for them.
func (e *Engine) Sync(ctx context.Context) (Report, error) {
	return e.resync(ctx)
}

func (e *Engine) resync(ctx context.Context) (Report, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	var r Report
	if err := e.flush(ctx, &r); err != nil {
		return r, err
	}
	if err := e.pullBacklog(ctx, &r); err != nil {
		return r, err
	}
	e.logger.Info(ctx, "resync done", "pushed", r.Pushed, "failed", r.Failed, "pulled", r.Pulled)
	return r, nil
}

// flush pushes every record the store still owes the server. A failed push
// leaves the record as it was.
func (e *Engine) flush(ctx context.Context, r *Report) error {
	pending, err := e.store.ListNeedingSync(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	for _, c := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.push(ctx, c); err != nil {
			r.Failed++
			e.logger.Warn(ctx, "push failed", "id", c.ID, "error", err)
			continue
		}
		r.Pushed++
	}
	return nil
}

// push sends c to the server with the operation its state calls for and
// settles the local row with the record the server answers with.
func (e *Engine) push(ctx context.Context, c *models.Contact) error {
	var (
		remote *models.Contact
		err    error
	)
	switch {
	case c.SoftDeleted:
		err = e.api.DeleteContact(ctx, c.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		_, err = e.store.ConfirmDeleted(ctx, c.ID)
		return err

	case c.PendingChange == models.PendingUpdated:
		remote, err = e.api.UpdateContact(ctx, c.ID, protocol.UpdateRequestFrom(c))

	default:
		req := protocol.CreateContactRequest{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, PhoneNumber: c.PhoneNumber}
		remote, err = e.api.CreateContact(ctx, req)
	}

	if errors.Is(err, common.ErrConflict) {
		// the server already holds this id; its copy is authoritative
		remote, err = e.api.GetContact(ctx, c.ID)
		if errors.Is(err, common.ErrNotFound) {
			e.removeRemote(ctx, c.ID)
			return nil
		}
	}
	if err != nil {
		return err
	}
	return e.settle(ctx, remote)
}

// settle stores the server's answer to a push. A tombstone removes the local
// row like a pushed deletion would.
func (e *Engine) settle(ctx context.Context, remote *models.Contact) error {
	if remote.SoftDeleted {
		e.removeRemote(ctx, remote.ID)
		return nil
	}
	ok, err := e.store.ConfirmRemote(ctx, remote)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug(ctx, "contact changed while pushing, left pending", "id", remote.ID)
	}
	return nil
}

// pullBacklog applies what the server still considers unsynced.
func (e *Engine) pullBacklog(ctx context.Context, r *Report) error {
	backlog, err := e.api.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("pull backlog: %w", err)
	}

	for _, c := range backlog {
		if c.SoftDeleted {
			e.removeRemote(ctx, c.ID)
		} else {
			e.applyRemote(ctx, c, protocol.AckFor(c.PendingChange))
		}
		r.Pulled++
	}
	return nil
}

// Create stores a new contact and pushes it once in the background.
func (e *Engine) Create(ctx context.Context, firstName, lastName, phoneNumber string) (*models.Contact, error) {
	req := protocol.CreateContactRequest{FirstName: firstName, LastName: lastName, PhoneNumber: phoneNumber}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := &models.Contact{
		ID:            e.newID(),
		FirstName:     firstName,
		LastName:      lastName,
		PhoneNumber:   phoneNumber,
		PendingChange: models.PendingCreated,
	}
	if err := e.store.Insert(ctx, c); err != nil {
		return nil, err
	}
	e.pushOnce(c.Clone())
	return c, nil
}

// Edit applies patch locally, stamped with the current time, and pushes the
// result once in the background.
func (e *Engine) Edit(ctx context.Context, id string, patch models.Patch) (*models.Contact, error) {
	now := e.now()
	req := protocol.UpdateContactRequest{
		FirstName:   patch.FirstName,
		LastName:    patch.LastName,
		PhoneNumber: patch.PhoneNumber,
		EditedAt:    protocol.NewTimestamp(now),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := e.store.Edit(ctx, id, patch, now)
	if err != nil {
		return nil, err
	}
	e.pushOnce(c.Clone())
	return c, nil
}

// Delete soft-deletes locally and pushes the deletion once in the background.
// The row is removed once the server has accepted it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.MarkDeleted(ctx, id); err != nil {
		return err
	}
	e.pushOnce(&models.Contact{ID: id, SoftDeleted: true, PendingChange: models.PendingDeleted})
	return nil
}

func (e *Engine) pushOnce(c *models.Contact) {
	e.spawn(func(ctx context.Context) {
		if err := e.push(ctx, c); err != nil {
			e.logger.Debug(ctx, "push deferred to next connect", "id", c.ID, "error", err)
		}
	})
}

func (e *Engine) Get(ctx context.Context, id string) (*models.Contact, error) {
	return e.store.GetByID(ctx, id)
}

func (e *Engine) List(ctx context.Context) ([]*models.Contact, error) {
	return e.store.ListVisible(ctx)
}

func (e *Engine) Pending(ctx context.Context) ([]*models.Contact, error) {
	return e.store.ListNeedingSync(ctx)
}
