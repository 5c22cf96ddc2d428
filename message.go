package netconf

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defines structs representing netconf messages and their XML forms.

// Define netconf URNs.
const (
	NetconfNS       = "urn:ietf:params:xml:ns:netconf:base:1.0"
	NetconfNotifyNS = "urn:ietf:params:xml:ns:netconf:notification:1.0"
	WithDefaultsNS  = "urn:ietf:params:xml:ns:yang:ietf-netconf-with-defaults"
	CapBase10       = "urn:ietf:params:netconf:base:1.0"
	CapBase11       = "urn:ietf:params:netconf:base:1.1"
)

// DefaultCapabilities sets the capabilities advertised by the client hello.
var DefaultCapabilities = []string{
	CapBase10,
	CapBase11,
}

// PeerSupportsChunkedFraming returns true if the capability list indicates
// support for chunked framing.
func PeerSupportsChunkedFraming(caps []string) bool {
	for _, capability := range caps {
		if capability == CapBase11 {
			return true
		}
	}
	return false
}

// Datastore identifies a configuration datastore on the device: one of the
// named stores or a URL.
type Datastore struct {
	name string
	url  string
}

// The named configuration datastores.
var (
	Running   = Datastore{name: "running"}
	Candidate = Datastore{name: "candidate"}
	Startup   = Datastore{name: "startup"}
)

// URLDatastore identifies a datastore by URL.
func URLDatastore(url string) Datastore {
	return Datastore{url: url}
}

// ParseDatastore maps a free-form string to a Datastore. The named stores
// match case-insensitively; anything starting with http, file or ftp is
// treated as a URL.
func ParseDatastore(s string) (Datastore, error) {
	datastore := strings.ToLower(s)
	switch datastore {
	case "running":
		return Running, nil
	case "candidate":
		return Candidate, nil
	case "startup":
		return Startup, nil
	}
	for _, scheme := range []string{"http", "file", "ftp"} {
		if strings.HasPrefix(datastore, scheme) {
			return URLDatastore(datastore), nil
		}
	}
	return Datastore{}, &UnknownDatastoreError{
		Expected: []string{"running", "candidate", "startup", "ftp|http|file"},
		Unknown:  datastore,
	}
}

func (d Datastore) String() string {
	if d.url != "" {
		return d.url
	}
	return d.name
}

func (d Datastore) element() *element {
	if d.url != "" {
		return elem("url").setText(d.url)
	}
	return elem(d.name)
}

// WithDefaultsValue selects the with-defaults retrieval mode defined by the
// ietf-netconf-with-defaults capability.
type WithDefaultsValue string

const (
	ReportAll       WithDefaultsValue = "report-all"
	ReportAllTagged WithDefaultsValue = "report-all-tagged"
	Trim            WithDefaultsValue = "trim"
	Explicit        WithDefaultsValue = "explicit"
)

// ParseWithDefaults maps a free-form string to a WithDefaultsValue,
// case-insensitively.
func ParseWithDefaults(s string) (WithDefaultsValue, error) {
	switch value := WithDefaultsValue(strings.ToLower(s)); value {
	case ReportAll, ReportAllTagged, Trim, Explicit:
		return value, nil
	}
	return "", errorf("unknown with-defaults value: %s", s)
}

func withDefaultsElement(v WithDefaultsValue) *element {
	if v == "" {
		return nil
	}
	return elem("with-defaults").attrib("xmlns", WithDefaultsNS).setText(string(v))
}

// Filter selects a region of the datastore. Only the subtree form is
// supported.
type Filter struct {
	filterType string
	data       string
}

// SubtreeFilter wraps the raw XML fragment as a subtree filter. The
// fragment is trimmed and backslash escape sequences are stripped; it is
// emitted into the envelope verbatim.
func SubtreeFilter(fragment string) *Filter {
	return &Filter{filterType: "subtree", data: stripSlashes(strings.TrimSpace(fragment))}
}

func (f *Filter) element() *element {
	if f == nil {
		return nil
	}
	return elem("filter").attrib("type", f.filterType).setRaw(f.data)
}

func stripSlashes(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// Operation is the body of an RPC request; exactly one operation is carried
// per envelope.
type Operation interface {
	operation() *element
}

// CloseSession requests graceful termination of the session.
type CloseSession struct{}

func (CloseSession) operation() *element {
	return elem("close-session")
}

// KillSession forcibly terminates another session.
type KillSession struct {
	SessionID uint64
}

func (op KillSession) operation() *element {
	return elem("kill-session").childText("session-id", formatUint(op.SessionID))
}

// Validate checks a datastore for validity.
type Validate struct {
	Source Datastore
}

func (op Validate) operation() *element {
	return elem("validate").child(elem("source").child(op.Source.element()))
}

// GetConfig retrieves configuration from a datastore.
type GetConfig struct {
	Source   Datastore
	Filter   *Filter
	Defaults WithDefaultsValue
}

func (op GetConfig) operation() *element {
	return elem("get-config").
		child(elem("source").child(op.Source.element())).
		child(op.Filter.element()).
		child(withDefaultsElement(op.Defaults))
}

// Get retrieves running configuration and device state.
type Get struct {
	Filter   *Filter
	Defaults WithDefaultsValue
}

func (op Get) operation() *element {
	return elem("get").
		child(op.Filter.element()).
		child(withDefaultsElement(op.Defaults))
}

// Commit commits the candidate configuration, optionally as a confirmed
// commit.
type Commit struct {
	Confirmed      bool
	ConfirmTimeout int32 // seconds; zero omits the element
	Persist        string
	PersistID      string
}

func (op Commit) operation() *element {
	e := elem("commit")
	if op.Confirmed {
		e.child(elem("confirmed"))
	}
	if op.ConfirmTimeout != 0 {
		e.childText("confirm-timeout", strconv.FormatInt(int64(op.ConfirmTimeout), 10))
	}
	if op.Persist != "" {
		e.childText("persist", op.Persist)
	}
	if op.PersistID != "" {
		e.childText("persist-id", op.PersistID)
	}
	return e
}

// CreateSubscription initiates an event notification subscription
// (RFC5277).
type CreateSubscription struct {
	Stream    string
	Filter    *Filter
	StartTime *time.Time
	StopTime  *time.Time
}

func (op CreateSubscription) operation() *element {
	e := elem("create-subscription").attrib("xmlns", NetconfNotifyNS)
	if op.Stream != "" {
		e.childText("stream", op.Stream)
	}
	e.child(op.Filter.element())
	// RFC5277 uses camelCase time element names.
	if op.StartTime != nil {
		e.childText("startTime", op.StartTime.UTC().Format(time.RFC3339))
	}
	if op.StopTime != nil {
		e.childText("stopTime", op.StopTime.UTC().Format(time.RFC3339))
	}
	return e
}

// RPCMessage is the envelope carrying one operation, identified by a fresh
// UUID.
type RPCMessage struct {
	MessageID string
	Operation Operation
}

// NewRPCMessage wraps the operation in an envelope with a fresh message id.
func NewRPCMessage(op Operation) *RPCMessage {
	return &RPCMessage{MessageID: uuid.NewString(), Operation: op}
}

// String renders the envelope, pretty-printed with two-space indentation.
// The subtree filter fragment, when present, appears on the wire
// un-escaped.
func (m *RPCMessage) String() string {
	root := elem("rpc").
		attrib("message-id", m.MessageID).
		attrib("xmlns", NetconfNS).
		child(m.Operation.operation())

	var b strings.Builder
	root.render(&b, 0, true)
	return b.String()
}

// String renders the client hello as a single line, the only form some
// servers accept during the initial exchange.
func (m *HelloMessage) String() string {
	capabilities := elem("capabilities")
	for _, capability := range m.Capabilities {
		capabilities.childText("capability", capability)
	}
	root := elem("hello").attrib("xmlns", NetconfNS).child(capabilities)
	return root.String()
}
