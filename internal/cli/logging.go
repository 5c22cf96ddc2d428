package cli

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/networkguild/netconf"
)

// Logging setup: info by default, -v for command diagnostics, -vv to log
// rpc responses, -vvv to log requests as well. --quiet disables logging
// completely.

func newLogger(verbosity int, quiet bool) *zap.Logger {
	if quiet {
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	if verbosity == 0 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// traceHooks bridges library trace events into the host logger according
// to verbosity.
func traceHooks(verbosity int, log *zap.Logger) *netconf.ClientTrace {
	trace := &netconf.ClientTrace{
		Error: func(context, target string, err error) {
			log.Error(context, zap.String("target", target), zap.Error(err))
		},
	}
	if verbosity < 2 {
		return trace
	}

	trace.HelloDone = func(msg *netconf.HelloMessage) {
		log.Debug("Hello exchange complete", zap.Uint64("session-id", msg.SessionID))
	}
	trace.ReadDone = func(msg string, err error, d time.Duration) {
		if err == nil {
			log.Debug("Response:\n" + msg)
		}
	}
	if verbosity >= 3 {
		trace.WriteDone = func(msg string, err error, d time.Duration) {
			if err == nil {
				log.Debug("Request:\n" + msg)
			}
		}
		trace.ConnectDone = func(target string, err error, d time.Duration) {
			log.Debug("Connect complete", zap.String("target", target), zap.Error(err), zap.Duration("took", d))
		}
	}
	return trace
}
