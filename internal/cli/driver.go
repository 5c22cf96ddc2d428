package cli

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/networkguild/netconf"
)

// Fans one command out over every host concurrently. Failures in one task
// never abort the peers; each outcome is logged with the host address as
// the target.

// HostHandler executes one command against an established session.
type HostHandler func(ctx context.Context, log *zap.Logger, session netconf.Session) error

// Fanout runs the handler against every configured host, one goroutine per
// host, and waits for all of them.
func Fanout(ctx context.Context, cfg *Config, handler HostHandler) {
	var wg sync.WaitGroup
	for _, addr := range cfg.Hosts {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			log := cfg.Logger.With(zap.String("host", addr))
			if err := runHost(ctx, cfg, log, addr, handler); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Debug("Task cancelled")
					return
				}
				log.Error("Task failed", zap.Error(err))
				return
			}
			log.Debug("Task completed successfully")
		}(addr)
	}
	wg.Wait()
}

func runHost(ctx context.Context, cfg *Config, log *zap.Logger, addr string, handler HostHandler) error {
	host, err := cfg.ResolveHost(addr)
	if err != nil {
		return err
	}
	sshcfg, err := host.ClientConfig()
	if err != nil {
		return err
	}

	ctx = netconf.WithClientTrace(ctx, traceHooks(cfg.Verbosity, log))

	start := time.Now()
	transport, err := netconf.NewSSHTransport(ctx, newHostDialer(host, sshcfg, log), host.Target())
	if err != nil {
		return err
	}
	session, err := netconf.NewSession(ctx, transport, netconf.DefaultConfig)
	if err != nil {
		return err
	}
	defer session.Close()

	log.Info("Connected to host")
	log.Debug("Started netconf session", zap.Uint64("session-id", session.SessionID()))

	if err := handler(ctx, log, session); err != nil {
		return err
	}

	log.Info("Operation took", zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// hostDialer wraps the library dialer to run the ssh keepalive loop when
// the host configuration asks for one.
type hostDialer struct {
	inner    *netconf.RealDialer
	interval time.Duration
	log      *zap.Logger
}

func newHostDialer(host *Host, sshcfg *ssh.ClientConfig, log *zap.Logger) *hostDialer {
	return &hostDialer{
		inner:    netconf.NewDialer(host.Target(), sshcfg),
		interval: host.keepaliveInterval,
		log:      log,
	}
}

func (d *hostDialer) Dial(ctx context.Context) (*ssh.Client, error) {
	client, err := d.inner.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if d.interval > 0 {
		d.log.Debug("Starting keepalive loop", zap.Duration("interval", d.interval))
		go keepalive(client, d.interval)
	}
	return client, nil
}

func (d *hostDialer) Close(client *ssh.Client) error {
	return d.inner.Close(client)
}

func keepalive(client *ssh.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			return
		}
	}
}
