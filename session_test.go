package netconf

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
)

// testTransport mocks the underlying transport layer, queueing up server
// responses and capturing client requests.
type testTransport struct {
	replies  []string
	requests []string
	upgraded bool
	closed   bool

	// When set, Receive blocks reading from this channel once the reply
	// queue is drained.
	blocking chan string
}

func (t *testTransport) Receive() (string, error) {
	if len(t.replies) > 0 {
		reply := t.replies[0]
		t.replies = t.replies[1:]
		return reply, nil
	}
	if t.blocking != nil {
		if msg, ok := <-t.blocking; ok {
			return msg, nil
		}
	}
	return "", io.EOF
}

func (t *testTransport) Write(msg string) error {
	t.requests = append(t.requests, msg)
	return nil
}

func (t *testTransport) WriteAndReceive(msg string) (string, error) {
	if err := t.Write(msg); err != nil {
		return "", err
	}
	return t.Receive()
}

func (t *testTransport) Upgrade() { t.upgraded = true }

func (t *testTransport) Close() error {
	t.closed = true
	return nil
}

func (t *testTransport) addReply(body string) {
	t.replies = append(t.replies, body)
}

const (
	serverHello = `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
		`<capabilities>` +
		`<capability>urn:ietf:params:netconf:base:1.0</capability>` +
		`<capability>urn:ietf:params:netconf:base:1.1</capability>` +
		`</capabilities><session-id>1</session-id></hello>`

	serverHello10 = `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
		`<capabilities><capability>urn:ietf:params:netconf:base:1.0</capability></capabilities>` +
		`<session-id>2</session-id></hello>`

	okReply = `<rpc-reply message-id="x" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><ok/></rpc-reply>`

	dataReply = `<rpc-reply message-id="x"><data><response/></data></rpc-reply>`

	errorReply = `<rpc-reply message-id="x"><rpc-error>` +
		`<error-type>app</error-type><error-tag>invalid-value</error-tag>` +
		`<error-severity>error</error-severity><error-message>oops</error-message>` +
		`</rpc-error></rpc-reply>`
)

func newTestSession(t *testing.T, tt *testTransport, cfg *Config) Session {
	s, err := NewSession(context.Background(), tt, cfg)
	assert.NoError(t, err, "Expecting new session to succeed")
	return s
}

func TestSessionHelloExchange(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	s := newTestSession(t, tt, DefaultConfig)

	assert.Equal(t, uint64(1), s.SessionID())
	assert.Contains(t, s.ServerCapabilities(), CapBase11)
	assert.True(t, tt.upgraded, "Both sides advertise 1.1, framing should be upgraded")

	assert.Len(t, tt.requests, 1)
	hello := tt.requests[0]
	assert.False(t, strings.Contains(hello, "\n"), "Client hello should be a single line")
	assert.Contains(t, hello, "<capability>urn:ietf:params:netconf:base:1.1</capability>")
	assert.NotContains(t, hello, "<?xml")
}

func TestSessionHelloWithoutChunkedPeer(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello10)
	s := newTestSession(t, tt, DefaultConfig)

	assert.Equal(t, uint64(2), s.SessionID())
	assert.False(t, tt.upgraded, "Server does not advertise 1.1, framing stays at 1.0")
}

func TestSessionHelloWithoutSessionID(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(`<hello><capabilities><capability>urn:ietf:params:netconf:base:1.1</capability></capabilities></hello>`)
	s := newTestSession(t, tt, DefaultConfig)

	assert.Zero(t, s.SessionID(), "Session id should be zero when the server omits it")
}

func TestSessionHelloTimeout(t *testing.T) {
	tt := &testTransport{blocking: make(chan string)}
	_, err := NewSession(context.Background(), tt, &Config{SetupTimeoutSecs: 1})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get hello from server")
}

func TestGetConfigReturnsRawReply(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(dataReply)
	s := newTestSession(t, tt, DefaultConfig)

	reply, err := s.GetConfig(Running, nil, ReportAll)
	assert.NoError(t, err)
	assert.Equal(t, dataReply, reply, "Caller should receive the reply unparsed")

	req := tt.requests[1]
	assert.Contains(t, req, "<get-config>")
	assert.Contains(t, req, "<running/>")
	assert.Contains(t, req, ">report-all</with-defaults>")
}

func TestGetWithFilter(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(dataReply)
	s := newTestSession(t, tt, DefaultConfig)

	fragment := `<top xmlns="https://example.com/schema/1.2/config"/>`
	_, err := s.Get(SubtreeFilter(fragment), "")
	assert.NoError(t, err)

	assert.Contains(t, tt.requests[1], `<filter type="subtree">`+fragment+`</filter>`)
}

func TestExecuteWithRPCError(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(errorReply)
	s := newTestSession(t, tt, DefaultConfig)

	raw, err := s.Commit()
	assert.Error(t, err)
	assert.Equal(t, errorReply, raw, "Raw reply should accompany the error")

	var reply *RPCReply
	assert.ErrorAs(t, err, &reply)
	assert.True(t, reply.HasErrors())
	assert.Equal(t, "netconf rpc [error] 'oops'", reply.Errors[0].Error())
}

func TestExecuteWithSkipReplyParsing(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(errorReply)
	s := newTestSession(t, tt, &Config{SkipReplyParsing: true})

	raw, err := s.Commit()
	assert.NoError(t, err, "Parsing disabled, error replies pass through")
	assert.Equal(t, errorReply, raw)
}

func TestCloseSessionRefusesFurtherRPCs(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	s := newTestSession(t, tt, DefaultConfig)

	reply, err := s.CloseSession()
	assert.NoError(t, err)
	assert.Equal(t, okReply, reply)
	assert.Contains(t, tt.requests[1], "<close-session/>")

	_, err = s.Get(nil, "")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.CloseSession()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestKillSession(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	s := newTestSession(t, tt, DefaultConfig)

	_, err := s.KillSession(69)
	assert.NoError(t, err)
	assert.Contains(t, tt.requests[1], "<session-id>69</session-id>")

	_, err = s.Validate(Candidate)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseAttemptsCloseSession(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	s := newTestSession(t, tt, DefaultConfig)

	s.Close()
	assert.True(t, tt.closed, "Transport should be closed")
	assert.Contains(t, tt.requests[1], "<close-session/>", "Close should attempt close-session")
}

func TestCloseAfterCloseSessionSendsNothing(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	s := newTestSession(t, tt, DefaultConfig)

	_, err := s.CloseSession()
	assert.NoError(t, err)

	s.Close()
	assert.True(t, tt.closed)
	assert.Len(t, tt.requests, 2, "No further envelope after explicit close-session")
}

func TestNotificationStreaming(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	tt.addReply("<notification>first</notification>")
	tt.addReply("<notification>second</notification>")
	s := newTestSession(t, tt, DefaultConfig)

	var received []string
	err := s.Notification(context.Background(), func(msg string) error {
		received = append(received, msg)
		return nil
	}, "NETCONF", nil, 0)

	assert.ErrorIs(t, err, io.EOF, "Loop ends when the transport fails")
	assert.Equal(t, []string{"<notification>first</notification>", "<notification>second</notification>"}, received)

	req := tt.requests[1]
	assert.Contains(t, req, `<create-subscription xmlns="urn:ietf:params:xml:ns:netconf:notification:1.0">`)
	assert.Contains(t, req, "<stream>NETCONF</stream>")
	assert.NotContains(t, req, "<startTime>", "Times are omitted without a duration")

	_, err = s.Get(nil, "")
	assert.ErrorIs(t, err, ErrSessionClosed, "Session must not issue RPCs after streaming")
}

func TestNotificationWithDuration(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	s := newTestSession(t, tt, DefaultConfig)

	_ = s.Notification(context.Background(), func(string) error { return nil }, "", nil, time.Minute)

	req := tt.requests[1]
	assert.Contains(t, req, "<startTime>")
	assert.Contains(t, req, "<stopTime>")
	assert.NotContains(t, req, "<stream>")
}

func TestNotificationHandlerRejection(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	tt.addReply("<notification>first</notification>")
	tt.addReply("<notification>second</notification>")
	s := newTestSession(t, tt, DefaultConfig)

	rejection := errorf("sink full")
	var count int
	err := s.Notification(context.Background(), func(string) error {
		count++
		return rejection
	}, "", nil, 0)

	assert.ErrorIs(t, err, rejection)
	assert.Equal(t, 1, count, "Loop stops on first rejection")
}

func TestNotificationCancellation(t *testing.T) {
	tt := &testTransport{blocking: make(chan string)}
	tt.addReply(serverHello)
	tt.addReply(okReply)
	s := newTestSession(t, tt, DefaultConfig)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := s.Notification(ctx, func(string) error { return nil }, "", nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotificationSubscriptionFailure(t *testing.T) {
	tt := &testTransport{}
	tt.addReply(serverHello)
	tt.addReply(errorReply)
	s := newTestSession(t, tt, DefaultConfig)

	err := s.Notification(context.Background(), func(string) error { return nil }, "", nil, 0)
	assert.Error(t, err)

	var reply *RPCReply
	assert.ErrorAs(t, err, &reply)
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	first := &testTransport{}
	first.addReply(serverHello)
	second := &testTransport{}
	second.addReply(serverHello10)

	type result struct {
		id  uint64
		err error
	}
	results := make(chan result, 2)
	for _, tt := range []*testTransport{first, second} {
		go func(tt *testTransport) {
			s, err := NewSession(context.Background(), tt, DefaultConfig)
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{id: s.SessionID()}
		}(tt)
	}

	ids := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		r := <-results
		assert.NoError(t, r.err)
		ids[r.id] = true
	}
	assert.Len(t, ids, 2, "Sessions should observe independent session ids")
}

func TestEnsurePort(t *testing.T) {
	assert.Equal(t, "10.0.0.1:830", EnsurePort("10.0.0.1"))
	assert.Equal(t, "10.0.0.1:22", EnsurePort("10.0.0.1:22"))
}
