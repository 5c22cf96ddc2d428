package netconf

import (
	"context"
	"sync"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
)

// The Message layer defines a set of base protocol operations
// invoked as RPC methods with XML-encoded parameters.

// NotificationHandler consumes one streamed notification message. A non-nil
// error stops the receive loop.
type NotificationHandler func(msg string) error

// Session represents a Netconf Session
type Session interface {
	// GetConfig executes the <get-config> operation against source and returns
	// the raw reply.
	GetConfig(source Datastore, filter *Filter, defaults WithDefaultsValue) (string, error)

	// Get executes the <get> operation and returns the raw reply.
	Get(filter *Filter, defaults WithDefaultsValue) (string, error)

	// Validate executes the <validate> operation against source.
	Validate(source Datastore) (string, error)

	// Commit commits the candidate configuration.
	Commit() (string, error)

	// ConfirmedCommit issues <commit> with <confirmed/>. A zero confirmTimeout
	// and empty persist values are omitted from the envelope.
	ConfirmedCommit(confirmTimeout int32, persist, persistID string) (string, error)

	// CloseSession requests orderly termination. No further RPCs may be
	// issued once it has been sent.
	CloseSession() (string, error)

	// KillSession forcibly terminates the session identified by id. No
	// further RPCs may be issued once it has been sent.
	KillSession(id uint64) (string, error)

	// Notification issues <create-subscription> and then streams every
	// received message to the handler until the handler rejects one, the
	// transport fails, or ctx is cancelled. The session cannot be used for
	// RPCs afterwards.
	Notification(ctx context.Context, handler NotificationHandler, stream string, filter *Filter, duration time.Duration) error

	// SessionID delivers the server-allocated id of the session, zero when
	// the server omitted it from its hello.
	SessionID() uint64

	// ServerCapabilities delivers the server-supplied capabilities.
	ServerCapabilities() []string

	// Close releases the session. Unless CloseSession, KillSession or a
	// successful Notification subscription has already closed the session
	// for RPCs, a best-effort close-session is attempted first, logging
	// failures.
	Close()
}

type sesImpl struct {
	cfg   *Config
	t     Transport
	trace *ClientTrace

	hello  *HelloMessage
	target string

	mu     sync.Mutex
	closed bool
}

// Implemented by transports that know their remote address, used as the
// trace log target.
type targeted interface {
	Target() string
}

// NewSession creates a new Netconf session, using the supplied Transport.
// The hello exchange runs during creation; the session is never observable
// in a pre-hello state.
func NewSession(ctx context.Context, t Transport, cfg *Config) (Session, error) {
	resolvedConfig := *cfg
	_ = mergo.Merge(&resolvedConfig, DefaultConfig)

	si := &sesImpl{
		cfg:   &resolvedConfig,
		t:     t,
		trace: ContextClientTrace(ctx),
	}
	if tt, ok := t.(targeted); ok {
		si.target = tt.Target()
	}

	if err := si.exchangeHello(); err != nil {
		si.trace.Error("Failed to complete hello exchange", si.target, err)
		_ = t.Close()
		return nil, err
	}
	return si, nil
}

func (si *sesImpl) exchangeHello() error {
	hello := &HelloMessage{Capabilities: si.cfg.Capabilities}

	type helloResult struct {
		hello *HelloMessage
		err   error
	}
	hellochan := make(chan helloResult, 1)
	go func() {
		response, err := si.t.WriteAndReceive(hello.String())
		if err != nil {
			hellochan <- helloResult{err: err}
			return
		}
		peer, err := DecodeHello(response)
		hellochan <- helloResult{hello: peer, err: err}
	}()

	select {
	case result := <-hellochan:
		if result.err != nil {
			return result.err
		}
		si.hello = result.hello
	case <-time.After(time.Duration(si.cfg.SetupTimeoutSecs) * time.Second):
		return errors.New("failed to get hello from server")
	}

	// The negotiated base is 1.1 iff both sides advertise it; the framing
	// mode is then fixed for the session's lifetime.
	if PeerSupportsChunkedFraming(si.cfg.Capabilities) && PeerSupportsChunkedFraming(si.hello.Capabilities) {
		si.t.Upgrade()
	}
	si.trace.HelloDone(si.hello)
	return nil
}

func (si *sesImpl) GetConfig(source Datastore, filter *Filter, defaults WithDefaultsValue) (string, error) {
	return si.execute(GetConfig{Source: source, Filter: filter, Defaults: defaults})
}

func (si *sesImpl) Get(filter *Filter, defaults WithDefaultsValue) (string, error) {
	return si.execute(Get{Filter: filter, Defaults: defaults})
}

func (si *sesImpl) Validate(source Datastore) (string, error) {
	return si.execute(Validate{Source: source})
}

func (si *sesImpl) Commit() (string, error) {
	return si.execute(Commit{})
}

func (si *sesImpl) ConfirmedCommit(confirmTimeout int32, persist, persistID string) (string, error) {
	return si.execute(Commit{
		Confirmed:      true,
		ConfirmTimeout: confirmTimeout,
		Persist:        persist,
		PersistID:      persistID,
	})
}

func (si *sesImpl) CloseSession() (string, error) {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.closed {
		return "", ErrSessionClosed
	}
	si.closed = true
	return si.run(CloseSession{})
}

func (si *sesImpl) KillSession(id uint64) (string, error) {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.closed {
		return "", ErrSessionClosed
	}
	si.closed = true
	return si.run(KillSession{SessionID: id})
}

func (si *sesImpl) Notification(ctx context.Context, handler NotificationHandler, stream string, filter *Filter, duration time.Duration) error {
	op := CreateSubscription{Stream: stream, Filter: filter}
	if duration > 0 {
		start := time.Now().UTC()
		stop := start.Add(duration)
		op.StartTime = &start
		op.StopTime = &stop
	}

	si.mu.Lock()
	if si.closed {
		si.mu.Unlock()
		return ErrSessionClosed
	}
	_, err := si.run(op)
	if err != nil {
		si.mu.Unlock()
		return err
	}
	// Receive-only from here on; the session cannot issue RPCs again.
	si.closed = true
	si.mu.Unlock()

	return si.receiveNotifications(ctx, handler)
}

func (si *sesImpl) receiveNotifications(ctx context.Context, handler NotificationHandler) error {
	done := make(chan struct{})
	defer close(done)

	msgs := make(chan string)
	errs := make(chan error, 1)
	go func() {
		for {
			msg, err := si.t.Receive()
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case msg := <-msgs:
			si.trace.NotificationReceived(msg)
			if err := handler(msg); err != nil {
				return err
			}
		}
	}
}

func (si *sesImpl) SessionID() uint64 {
	return si.hello.SessionID
}

func (si *sesImpl) ServerCapabilities() []string {
	return si.hello.Capabilities
}

func (si *sesImpl) Close() {
	si.mu.Lock()
	closed := si.closed
	si.closed = true
	si.mu.Unlock()

	if !closed {
		if _, err := si.run(CloseSession{}); err != nil {
			si.trace.Error("Failed to close session", si.target, err)
		}
	}
	if err := si.t.Close(); err != nil {
		si.trace.Error("Session close failed", si.target, err)
	}
}

// execute serialises one RPC over the transport; at most one is outstanding
// at a time.
func (si *sesImpl) execute(op Operation) (string, error) {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.closed {
		return "", ErrSessionClosed
	}
	return si.run(op)
}

// run performs the request/reply round trip. The caller either holds the
// lock or, as Close does, has already marked the session closed under it so
// that no other RPC can start.
func (si *sesImpl) run(op Operation) (response string, err error) {
	msg := NewRPCMessage(op)

	si.trace.ExecuteStart(msg)
	defer func(begin time.Time) {
		si.trace.ExecuteDone(msg, err, time.Since(begin))
	}(time.Now())

	response, err = si.t.WriteAndReceive(msg.String())
	if err != nil {
		return "", err
	}

	// The raw reply is what callers get back; parsing only detects
	// rpc-error records.
	if !si.cfg.SkipReplyParsing {
		reply, derr := DecodeReply(response)
		if derr != nil {
			return "", derr
		}
		if reply.HasErrors() {
			return response, reply
		}
	}
	return response, nil
}
