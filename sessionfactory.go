package netconf

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// Defines factory methods for instantiating netconf rpc sessions.

// NewRPCSession connects to the target using the ssh configuration, and establishes
// a netconf session with default configuration.
func NewRPCSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (s Session, err error) {
	return NewRPCSessionWithConfig(ctx, sshcfg, target, DefaultConfig)
}

// NewRPCSessionFromSSHClient establishes a netconf session over the given ssh Client with default configuration.
func NewRPCSessionFromSSHClient(ctx context.Context, client *ssh.Client) (s Session, err error) {
	return NewRPCSessionFromSSHClientWithConfig(ctx, client, DefaultConfig)
}

// NewRPCSessionWithConfig connects to the target using the ssh configuration, and establishes
// a netconf session with the client configuration.
func NewRPCSessionWithConfig(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *Config) (s Session, err error) {
	var t Transport
	if t, err = NewSSHTransport(ctx, NewDialer(EnsurePort(target), sshcfg), EnsurePort(target)); err != nil {
		return
	}

	// NewSession closes the transport when the hello exchange fails.
	return NewSession(ctx, t, cfg)
}

// NewRPCSessionFromSSHClientWithConfig establishes a netconf session over the given ssh Client with the client configuration.
func NewRPCSessionFromSSHClientWithConfig(ctx context.Context, client *ssh.Client, cfg *Config) (s Session, err error) {
	var t Transport
	if t, err = NewSSHTransport(ctx, newNoOpDialer(client), client.RemoteAddr().String()); err != nil {
		return
	}

	return NewSession(ctx, t, cfg)
}
