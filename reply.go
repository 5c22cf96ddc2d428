package netconf

import (
	"encoding/xml"
	"fmt"

	"github.com/pkg/errors"
)

// Decoding of the server-originated messages: hello and rpc-reply.
// Element names are matched without a namespace so that replies with or
// without a default namespace on the root are accepted; unknown child
// elements (such as <data>) are tolerated.

// HelloMessage defines the message sent/received during session
// negotiation. A server that omits session-id decodes to the zero value.
type HelloMessage struct {
	XMLName      xml.Name `xml:"hello"`
	Capabilities []string `xml:"capabilities>capability"`
	SessionID    uint64   `xml:"session-id,omitempty"`
}

// HasCapability returns true if the hello advertised the capability URI.
func (m *HelloMessage) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// DecodeHello parses a hello message.
func DecodeHello(raw string) (*HelloMessage, error) {
	hello := &HelloMessage{}
	if err := xml.Unmarshal([]byte(raw), hello); err != nil {
		return nil, errors.Wrap(err, "failed to decode hello")
	}
	return hello, nil
}

// RPCReply defines the reply to an RPC request.
type RPCReply struct {
	XMLName   xml.Name   `xml:"rpc-reply"`
	MessageID string     `xml:"message-id,attr"`
	Errors    []RPCError `xml:"rpc-error"`
	OK        *struct{}  `xml:"ok"`

	// Raw holds the reply text exactly as received.
	Raw string `xml:"-"`
}

// HasErrors returns true if the reply carries at least one rpc-error.
func (r *RPCReply) HasErrors() bool {
	return len(r.Errors) > 0
}

// IsOK returns true if the reply carries the ok marker and no errors.
func (r *RPCReply) IsOK() bool {
	return r.OK != nil && !r.HasErrors()
}

// Error makes a reply with rpc-errors usable as the error value of the RPC
// that produced it.
func (r *RPCReply) Error() string {
	if len(r.Errors) > 0 {
		return fmt.Sprintf("remote procedure call failed: %s", r.Errors[0].Error())
	}
	return "remote procedure call failed"
}

// DecodeReply parses an rpc-reply, retaining the raw text.
func DecodeReply(raw string) (*RPCReply, error) {
	reply := &RPCReply{}
	if err := xml.Unmarshal([]byte(raw), reply); err != nil {
		return nil, errors.Wrap(err, "failed to decode rpc-reply")
	}
	reply.Raw = raw
	return reply, nil
}

// RPCError defines an error reply to an RPC request.
type RPCError struct {
	Severity ErrorSeverity `xml:"error-severity"`
	Type     ErrorType     `xml:"error-type"`
	Tag      ErrorTag      `xml:"error-tag"`
	AppTag   string        `xml:"error-app-tag"`
	Path     string        `xml:"error-path"`
	Message  string        `xml:"error-message"`
	Info     *ErrorInfo    `xml:"error-info"`
}

// Error generates a string representation of the RPC error.
func (re *RPCError) Error() string {
	return fmt.Sprintf("netconf rpc [%s] '%s'", re.Severity, re.Message)
}

// ErrorInfo carries the protocol-defined error-info children.
type ErrorInfo struct {
	BadElement   string `xml:"bad-element"`
	BadAttribute string `xml:"bad-attribute"`
	BadNamespace string `xml:"bad-namespace"`
	OkElement    string `xml:"ok-element"`
	ErrElement   string `xml:"err-element"`
	NoopElement  string `xml:"noop-element"`
	SessionID    uint64 `xml:"session-id"`
}

// ErrorSeverity is the severity of an rpc-error.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

func (s *ErrorSeverity) UnmarshalText(text []byte) error {
	switch value := ErrorSeverity(text); value {
	case SeverityError, SeverityWarning:
		*s = value
		return nil
	}
	return errorf("unknown error-severity value: %s", text)
}

// ErrorType identifies the protocol layer where an rpc-error occurred.
type ErrorType string

const (
	TypeTransport ErrorType = "transport"
	TypeRPC       ErrorType = "rpc"
	TypeProtocol  ErrorType = "protocol"
	TypeApp       ErrorType = "app"
)

func (t *ErrorType) UnmarshalText(text []byte) error {
	switch value := ErrorType(text); value {
	case TypeTransport, TypeRPC, TypeProtocol, TypeApp:
		*t = value
		return nil
	}
	return errorf("unknown error-type value: %s", text)
}

// ErrorTag is the RFC6241 appendix A error tag.
type ErrorTag string

const (
	TagInUse                 ErrorTag = "in-use"
	TagInvalidValue          ErrorTag = "invalid-value"
	TagTooBig                ErrorTag = "too-big"
	TagMissingAttribute      ErrorTag = "missing-attribute"
	TagBadAttribute          ErrorTag = "bad-attribute"
	TagUnknownAttribute      ErrorTag = "unknown-attribute"
	TagMissingElement        ErrorTag = "missing-element"
	TagBadElement            ErrorTag = "bad-element"
	TagUnknownElement        ErrorTag = "unknown-element"
	TagUnknownNamespace      ErrorTag = "unknown-namespace"
	TagAccessDenied          ErrorTag = "access-denied"
	TagLockDenied            ErrorTag = "lock-denied"
	TagResourceDenied        ErrorTag = "resource-denied"
	TagRollbackFailed        ErrorTag = "rollback-failed"
	TagDataExists            ErrorTag = "data-exists"
	TagDataMissing           ErrorTag = "data-missing"
	TagOperationNotSupported ErrorTag = "operation-not-supported"
	TagOperationFailed       ErrorTag = "operation-failed"
	TagPartialOperation      ErrorTag = "partial-operation"
	TagMalformedMessage      ErrorTag = "malformed-message"
)

var errorTags = map[ErrorTag]struct{}{
	TagInUse: {}, TagInvalidValue: {}, TagTooBig: {},
	TagMissingAttribute: {}, TagBadAttribute: {}, TagUnknownAttribute: {},
	TagMissingElement: {}, TagBadElement: {}, TagUnknownElement: {},
	TagUnknownNamespace: {}, TagAccessDenied: {}, TagLockDenied: {},
	TagResourceDenied: {}, TagRollbackFailed: {}, TagDataExists: {},
	TagDataMissing: {}, TagOperationNotSupported: {}, TagOperationFailed: {},
	TagPartialOperation: {}, TagMalformedMessage: {},
}

func (t *ErrorTag) UnmarshalText(text []byte) error {
	value := ErrorTag(text)
	if _, ok := errorTags[value]; !ok {
		return errorf("unknown error-tag value: %s", text)
	}
	*t = value
	return nil
}
