package netconf

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/networkguild/netconf/rfc6242"
)

// The SSH transport adapter: an ssh channel bound to the netconf subsystem,
// surfaced as a framed message stream. This is the only place that knows
// about SSH.

const (
	// DefaultPort is the IANA-assigned port for NETCONF over SSH.
	DefaultPort = "830"

	// Bounds on TCP connect and SSH handshake.
	dialTimeout      = 10 * time.Second
	handshakeTimeout = 10 * time.Second

	// How long Close waits for the peer to acknowledge EOF.
	closeWait = time.Second
)

// EnsurePort appends the default NETCONF port to an address that carries
// none.
func EnsurePort(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return net.JoinHostPort(addr, DefaultPort)
}

// SSHClientFactory defines a factory that provides an SSH client.
type SSHClientFactory interface {
	Dial(ctx context.Context) (*ssh.Client, error)
	// Close will close the client (assumed to have been returned by an earlier call to the Dial method), if
	// appropriate.
	Close(*ssh.Client) error
}

type tImpl struct {
	framer      *rfc6242.Framer
	writeCloser io.WriteCloser
	sshSession  *ssh.Session
	sshClient   *ssh.Client
	trace       *ClientTrace
	target      string
	dialer      SSHClientFactory
}

type channelStream struct {
	io.Reader
	io.Writer
}

// NewSSHTransport creates a new SSH transport, connecting to the target with the supplied client factory
// and requesting the netconf subsystem.
func NewSSHTransport(ctx context.Context, dialer SSHClientFactory, target string) (rt Transport, err error) {
	impl := tImpl{target: target, dialer: dialer}
	impl.trace = ContextClientTrace(ctx)

	impl.trace.ConnectStart(target)

	defer func(begin time.Time) {
		impl.trace.ConnectDone(target, err, time.Since(begin))
	}(time.Now())

	defer func() {
		if err != nil {
			_ = dialer.Close(impl.sshClient)
			if impl.sshSession != nil {
				_ = impl.sshSession.Close()
			}
		}
	}()

	impl.sshClient, err = dialer.Dial(ctx)
	if err != nil {
		return
	}

	if impl.sshSession, err = impl.sshClient.NewSession(); err != nil {
		return
	}

	if err = impl.sshSession.RequestSubsystem("netconf"); err != nil {
		return
	}

	var reader io.Reader
	if reader, err = impl.sshSession.StdoutPipe(); err != nil {
		return
	}

	if impl.writeCloser, err = impl.sshSession.StdinPipe(); err != nil {
		return
	}

	impl.framer = rfc6242.NewFramer(channelStream{Reader: reader, Writer: impl.writeCloser})

	rt = &impl
	return rt, err
}

func (t *tImpl) Receive() (msg string, err error) {
	defer func(begin time.Time) {
		t.trace.ReadDone(msg, err, time.Since(begin))
	}(time.Now())

	return t.framer.ReadMessage()
}

func (t *tImpl) Write(msg string) (err error) {
	defer func(begin time.Time) {
		t.trace.WriteDone(msg, err, time.Since(begin))
	}(time.Now())

	return t.framer.WriteMessage(msg)
}

func (t *tImpl) WriteAndReceive(msg string) (string, error) {
	if err := t.Write(msg); err != nil {
		return "", err
	}
	return t.Receive()
}

func (t *tImpl) Upgrade() {
	t.framer.Upgrade()
}

func (t *tImpl) Target() string {
	return t.target
}

// Close tears the channel down in order:
//
//  1. stdin pipe, signalling EOF to the peer
//  2. wait briefly for the peer to finish
//  3. SSH session
//  4. SSH client
//
// The SSH client close error takes priority, then the stdin pipe error,
// then the SSH session error.
func (t *tImpl) Close() (err error) {
	defer func() { t.trace.ConnectionClosed(t.target, err) }()

	var (
		writeCloseErr      error
		sshSessionCloseErr error
	)

	if t.writeCloser != nil {
		writeCloseErr = t.writeCloser.Close()
	}

	if t.sshSession != nil {
		waitForPeer(t.sshSession)
		sshSessionCloseErr = t.sshSession.Close()
	}

	// Use dialer to close the client, so we don't close a pre-existing client.
	err = t.dialer.Close(t.sshClient)

	if err == nil {
		err = writeCloseErr
	}

	if err == nil {
		err = sshSessionCloseErr
	}

	return err
}

// waitForPeer gives the server a moment to acknowledge EOF before the
// channel is torn down.
func waitForPeer(session *ssh.Session) {
	done := make(chan struct{})
	go func() {
		_ = session.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
	}
}

// Defines factories for dialling the remote host.

func NewDialer(target string, clientConfig *ssh.ClientConfig) *RealDialer {
	return &RealDialer{target: target, config: clientConfig}
}

type RealDialer struct {
	target string
	config *ssh.ClientConfig
}

func (rd *RealDialer) Dial(ctx context.Context) (cli *ssh.Client, err error) {
	tracer := ContextClientTrace(ctx)

	tracer.DialStart(rd.config, rd.target)
	defer func(begin time.Time) {
		tracer.DialDone(rd.config, rd.target, err, time.Since(begin))
	}(time.Now())

	timeout := dialTimeout
	if rd.config.Timeout > 0 {
		timeout = rd.config.Timeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", rd.target)
	if err != nil {
		return nil, err
	}

	// Bound the ssh handshake with a connection deadline, lifted once the
	// client connection is established.
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, rd.target, rd.config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func (rd *RealDialer) Close(cli *ssh.Client) (err error) {
	if cli != nil {
		err = cli.Close()
	}
	return err
}

func newNoOpDialer(client *ssh.Client) *noOpDialer {
	return &noOpDialer{client: client}
}

type noOpDialer struct {
	client *ssh.Client
}

func (nd *noOpDialer) Dial(ctx context.Context) (cli *ssh.Client, err error) {
	return nd.client, nil
}

func (nd *noOpDialer) Close(_ *ssh.Client) error {
	// Don't want to close a pre-existing connection.
	return nil
}

// PasswordConfig builds an ssh client configuration for password
// authentication.
func PasswordConfig(username, password string) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // nolint: gosec
	}
}

// AgentConfig builds an ssh client configuration that authenticates with
// the key agent named by SSH_AUTH_SOCK, trying each identity in turn.
func AgentConfig(username string) (*ssh.ClientConfig, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("no ssh agent available: SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ssh agent")
	}
	keyring := agent.NewClient(conn)
	return &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(keyring.Signers)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // nolint: gosec
	}, nil
}
