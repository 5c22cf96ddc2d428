package cli

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ssh_config "github.com/kevinburke/ssh_config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/networkguild/netconf"
)

// Defines the shared invocation configuration and per-host resolution,
// including ~/.ssh/config overrides.

// Config carries the options shared by every host task. It is built once
// before fan-out and treated as read-only afterwards.
type Config struct {
	Hosts     []string
	Username  string
	Password  string
	Verbosity int
	Logger    *zap.Logger

	sshConfig *ssh_config.Config
}

// loadSSHConfig parses ~/.ssh/config when present. A missing or broken file
// only disables per-host overrides.
func (c *Config) loadSSHConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".ssh", "config")

	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		c.Logger.Debug("Could not open ssh config file", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		c.Logger.Error("Failed to parse ssh configuration", zap.String("path", path), zap.Error(err))
		return
	}
	c.Logger.Debug("Parsed ssh configuration", zap.String("path", path))
	c.sshConfig = cfg
}

func (c *Config) sshSetting(alias, key string) string {
	if c.sshConfig == nil {
		return ""
	}
	value, err := c.sshConfig.Get(alias, key)
	if err != nil {
		return ""
	}
	return value
}

// Host is one resolved target: the dial address plus the authentication
// material and ssh settings that apply to it.
type Host struct {
	// Address is the host as given on the command line, used as the log
	// target.
	Address string

	hostname     string
	port         string
	username     string
	password     string
	identityFile string

	connectTimeout    time.Duration
	keepaliveInterval time.Duration

	ciphers           []string
	macs              []string
	kexAlgorithms     []string
	hostKeyAlgorithms []string
}

// ResolveHost applies ssh config overrides and the shared credentials to
// one host address. An address without a port gets the default 830.
func (c *Config) ResolveHost(addr string) (*Host, error) {
	host := &Host{Address: addr}

	host.hostname = addr
	host.port = netconf.DefaultPort
	if hostname, port, err := net.SplitHostPort(addr); err == nil {
		host.hostname = hostname
		host.port = port
	}

	alias := host.hostname
	if hostname := c.sshSetting(alias, "HostName"); hostname != "" {
		host.hostname = hostname
	}
	if port := c.sshSetting(alias, "Port"); port != "" && !strings.Contains(addr, ":") {
		host.port = port
	}

	host.username = c.Username
	if host.username == "" {
		host.username = c.sshSetting(alias, "User")
	}
	if host.username == "" {
		return nil, errors.New("no username provided")
	}

	host.password = c.Password
	host.identityFile = c.sshSetting(alias, "IdentityFile")
	if host.password == "" && host.identityFile == "" && os.Getenv("SSH_AUTH_SOCK") == "" {
		return nil, errors.New("no password, identity file or ssh agent available")
	}

	if timeout := c.sshSetting(alias, "ConnectTimeout"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil {
			host.connectTimeout = time.Duration(secs) * time.Second
		}
	}
	if isTruthy(c.sshSetting(alias, "TCPKeepAlive")) {
		if interval := c.sshSetting(alias, "ServerAliveInterval"); interval != "" {
			if secs, err := strconv.Atoi(interval); err == nil {
				host.keepaliveInterval = time.Duration(secs) * time.Second
			}
		}
	}
	if compression := c.sshSetting(alias, "Compression"); isTruthy(compression) {
		c.Logger.Debug("Compression requested but not supported", zap.String("host", alias))
	}

	host.ciphers = splitAlgorithms(c.sshSetting(alias, "Ciphers"))
	host.macs = splitAlgorithms(c.sshSetting(alias, "MACs"))
	host.kexAlgorithms = splitAlgorithms(c.sshSetting(alias, "KexAlgorithms"))
	host.hostKeyAlgorithms = splitAlgorithms(c.sshSetting(alias, "HostKeyAlgorithms"))

	return host, nil
}

// Target delivers the resolved dial address.
func (h *Host) Target() string {
	return net.JoinHostPort(h.hostname, h.port)
}

// ClientConfig builds the ssh client configuration for the host: password
// authentication when a password is available, an identity file when
// configured, key-agent authentication otherwise.
func (h *Host) ClientConfig() (*ssh.ClientConfig, error) {
	var cfg *ssh.ClientConfig
	switch {
	case h.password != "":
		cfg = netconf.PasswordConfig(h.username, h.password)
	case h.identityFile != "":
		auth, err := identityFileAuth(h.identityFile)
		if err != nil {
			return nil, err
		}
		cfg = &ssh.ClientConfig{
			User:            h.username,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), // nolint: gosec
		}
	default:
		var err error
		cfg, err = netconf.AgentConfig(h.username)
		if err != nil {
			return nil, err
		}
	}

	cfg.Timeout = h.connectTimeout
	cfg.Ciphers = h.ciphers
	cfg.MACs = h.macs
	cfg.KeyExchanges = h.kexAlgorithms
	cfg.HostKeyAlgorithms = h.hostKeyAlgorithms
	return cfg, nil
}

func identityFileAuth(path string) (ssh.AuthMethod, error) {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	key, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read identity file %s", path)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse identity file %s", path)
	}
	return ssh.PublicKeys(signer), nil
}

func splitAlgorithms(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func isTruthy(s string) bool {
	return strings.EqualFold(s, "yes") || strings.EqualFold(s, "true")
}
