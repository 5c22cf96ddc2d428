package netconf

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
	"golang.org/x/crypto/ssh"
)

// unique type to prevent assignment.
type clientEventContextKey struct{}

// ContextClientTrace returns the Trace associated with the
// provided context. If none, it returns no-op hooks.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent
// ctx. Netconf client requests made with the returned context will use
// the provided trace hooks
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	ctx = context.WithValue(ctx, clientEventContextKey{}, trace)
	return ctx
}

// ClientTrace defines a structure for handling trace events
type ClientTrace struct {
	// ConnectStart is called when starting to create a netconf connection to a remote server.
	ConnectStart func(target string)

	// ConnectDone is called when the transport connection attempt completes, with err indicating
	// whether it was successful.
	ConnectDone func(target string, err error, d time.Duration)

	// DialStart is called when starting to dial a remote server.
	DialStart func(clientConfig *ssh.ClientConfig, target string)

	// DialDone is called when dial completes.
	DialDone func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration)

	// HelloDone is called when the hello message has been received from the server.
	HelloDone func(msg *HelloMessage)

	// ConnectionClosed is called after a transport connection has been closed, with
	// err indicating any error condition.
	ConnectionClosed func(target string, err error)

	// ReadDone is called after a framed message has been read from the transport.
	ReadDone func(msg string, err error, d time.Duration)

	// WriteDone is called after a framed message has been written to the transport.
	WriteDone func(msg string, err error, d time.Duration)

	// Error is called after an error condition has been detected.
	Error func(context, target string, err error)

	// NotificationReceived is called when a notification has been received.
	NotificationReceived func(msg string)

	// ExecuteStart is called before the execution of an rpc request.
	ExecuteStart func(msg *RPCMessage)

	// ExecuteDone is called after the execution of an rpc request.
	ExecuteDone func(msg *RPCMessage, err error, d time.Duration)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context, target string, err error) {
		log.Printf("NETCONF-Error context:%s target:%s err:%v\n", context, target, err)
	},
}

// MetricLoggingHooks provides a set of hooks that will log network metrics.
var MetricLoggingHooks = &ClientTrace{
	ConnectDone: func(target string, err error, d time.Duration) {
		log.Printf("NETCONF-ConnectDone target:%s err:%v took:%dms\n", target, err, d.Milliseconds())
	},
	DialDone: func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration) {
		log.Printf("NETCONF-DialDone target:%s err:%v took:%dms\n", target, err, d.Milliseconds())
	},
	ReadDone: func(msg string, err error, d time.Duration) {
		log.Printf("NETCONF-ReadDone len:%d err:%v took:%dms\n", len(msg), err, d.Milliseconds())
	},
	WriteDone: func(msg string, err error, d time.Duration) {
		log.Printf("NETCONF-WriteDone len:%d err:%v took:%dms\n", len(msg), err, d.Milliseconds())
	},

	Error: DefaultLoggingHooks.Error,

	ExecuteDone: func(msg *RPCMessage, err error, d time.Duration) {
		log.Printf("NETCONF-ExecuteDone id:%s err:%v took:%dms\n", msg.MessageID, err, d.Milliseconds())
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(target string) {
		log.Printf("NETCONF-ConnectStart target:%s\n", target)
	},
	ConnectDone: MetricLoggingHooks.ConnectDone,
	DialStart: func(clientConfig *ssh.ClientConfig, target string) {
		log.Printf("NETCONF-DialStart target:%s\n", target)
	},
	DialDone: MetricLoggingHooks.DialDone,
	HelloDone: func(msg *HelloMessage) {
		log.Printf("NETCONF-HelloDone session-id:%d\n", msg.SessionID)
	},
	ConnectionClosed: func(target string, err error) {
		log.Printf("NETCONF-ConnectionClosed target:%s err:%v\n", target, err)
	},
	ReadDone: func(msg string, err error, d time.Duration) {
		log.Printf("NETCONF-ReadDone msg:%s err:%v took:%dms\n", msg, err, d.Milliseconds())
	},
	WriteDone: func(msg string, err error, d time.Duration) {
		log.Printf("NETCONF-WriteDone msg:%s err:%v took:%dms\n", msg, err, d.Milliseconds())
	},

	Error: DefaultLoggingHooks.Error,

	NotificationReceived: func(msg string) {
		log.Printf("NETCONF-NotificationReceived len:%d\n", len(msg))
	},
	ExecuteStart: func(msg *RPCMessage) {
		log.Printf("NETCONF-ExecuteStart id:%s\n", msg.MessageID)
	},
	ExecuteDone: MetricLoggingHooks.ExecuteDone,
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:     func(target string) {},
	ConnectDone:      func(target string, err error, d time.Duration) {},
	DialStart:        func(clientConfig *ssh.ClientConfig, target string) {},
	DialDone:         func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration) {},
	HelloDone:        func(msg *HelloMessage) {},
	ConnectionClosed: func(target string, err error) {},
	ReadDone:         func(msg string, err error, d time.Duration) {},
	WriteDone:        func(msg string, err error, d time.Duration) {},

	Error:                func(context, target string, err error) {},
	NotificationReceived: func(msg string) {},
	ExecuteStart:         func(msg *RPCMessage) {},
	ExecuteDone:          func(msg *RPCMessage, err error, d time.Duration) {},
}
