package netconf

import (
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
)

const messageID = "c1be0e7f-3cbc-413f-8aa8-18ed663221d4"

func envelope(op Operation) string {
	return (&RPCMessage{MessageID: messageID, Operation: op}).String()
}

func TestSerializeHello(t *testing.T) {
	hello := &HelloMessage{Capabilities: DefaultCapabilities}

	expected := `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
		`<capabilities>` +
		`<capability>urn:ietf:params:netconf:base:1.0</capability>` +
		`<capability>urn:ietf:params:netconf:base:1.1</capability>` +
		`</capabilities></hello>`
	assert.Equal(t, expected, hello.String(), "Hello should be a single line without declaration")
}

func TestSerializeCloseSession(t *testing.T) {
	expected := `<rpc message-id="c1be0e7f-3cbc-413f-8aa8-18ed663221d4" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <close-session/>
</rpc>`
	assert.Equal(t, expected, envelope(CloseSession{}))
}

func TestSerializeKillSession(t *testing.T) {
	expected := `<rpc message-id="c1be0e7f-3cbc-413f-8aa8-18ed663221d4" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <kill-session>
    <session-id>69</session-id>
  </kill-session>
</rpc>`
	assert.Equal(t, expected, envelope(KillSession{SessionID: 69}))
}

func TestSerializeValidate(t *testing.T) {
	expected := `<rpc message-id="c1be0e7f-3cbc-413f-8aa8-18ed663221d4" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <validate>
    <source>
      <candidate/>
    </source>
  </validate>
</rpc>`
	assert.Equal(t, expected, envelope(Validate{Source: Candidate}))
}

func TestSerializeGetConfigWithDefaults(t *testing.T) {
	body := envelope(GetConfig{Source: Running, Defaults: ReportAll})

	assert.Contains(t, body, "<source>\n      <running/>\n    </source>")
	assert.Contains(t, body,
		`<with-defaults xmlns="urn:ietf:params:xml:ns:yang:ietf-netconf-with-defaults">report-all</with-defaults>`)
}

func TestSerializeGetConfigURLSource(t *testing.T) {
	body := envelope(GetConfig{Source: URLDatastore("https://example.com/cfg")})
	assert.Contains(t, body, "<url>https://example.com/cfg</url>")
}

func TestSerializeGetWithSubtreeFilter(t *testing.T) {
	fragment := `<top xmlns="https://example.com/schema/1.2/config"><users><user><name>fred</name></user></users></top>`
	body := envelope(Get{Filter: SubtreeFilter(fragment)})

	// The fragment must reach the wire un-escaped.
	assert.Contains(t, body, `<filter type="subtree">`+fragment+`</filter>`)
	assert.NotContains(t, body, "&lt;")
}

func TestSerializeCommit(t *testing.T) {
	expected := `<rpc message-id="c1be0e7f-3cbc-413f-8aa8-18ed663221d4" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <commit/>
</rpc>`
	assert.Equal(t, expected, envelope(Commit{}))
}

func TestSerializeConfirmedCommit(t *testing.T) {
	expected := `<rpc message-id="c1be0e7f-3cbc-413f-8aa8-18ed663221d4" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <commit>
    <confirmed/>
    <confirm-timeout>120</confirm-timeout>
    <persist>persis,qqSADD</persist>
  </commit>
</rpc>`
	op := Commit{Confirmed: true, ConfirmTimeout: 120, Persist: "persis,qqSADD"}
	assert.Equal(t, expected, envelope(op))
}

func TestSerializeCreateSubscription(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stop := start.Add(time.Minute)
	op := CreateSubscription{Stream: "NETCONF", StartTime: &start, StopTime: &stop}

	expected := `<rpc message-id="c1be0e7f-3cbc-413f-8aa8-18ed663221d4" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <create-subscription xmlns="urn:ietf:params:xml:ns:netconf:notification:1.0">
    <stream>NETCONF</stream>
    <startTime>2024-05-01T12:00:00Z</startTime>
    <stopTime>2024-05-01T12:01:00Z</stopTime>
  </create-subscription>
</rpc>`
	assert.Equal(t, expected, envelope(op))
}

func TestNewRPCMessageAllocatesFreshID(t *testing.T) {
	first := NewRPCMessage(Commit{})
	second := NewRPCMessage(Commit{})

	assert.Len(t, first.MessageID, 36)
	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestSubtreeFilterStripsSlashes(t *testing.T) {
	f := SubtreeFilter(`  <a attr=\"x\"/>  `)
	assert.Equal(t, `<a attr="x"/>`, f.data)
}

func TestParseDatastore(t *testing.T) {
	tests := []struct {
		input  string
		expect Datastore
	}{
		{"RUNNING", Running},
		{"running", Running},
		{"Candidate", Candidate},
		{"startup", Startup},
		{"https://x", URLDatastore("https://x")},
		{"FILE:///tmp/cfg", URLDatastore("file:///tmp/cfg")},
	}
	for _, tt := range tests {
		ds, err := ParseDatastore(tt.input)
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.expect, ds, tt.input)
	}

	_, err := ParseDatastore("zzz")
	assert.Error(t, err)
	var ude *UnknownDatastoreError
	assert.ErrorAs(t, err, &ude)
	assert.Equal(t, []string{"running", "candidate", "startup", "ftp|http|file"}, ude.Expected)
	assert.Equal(t, "zzz", ude.Unknown)
}

func TestParseWithDefaults(t *testing.T) {
	for _, input := range []string{"report-all", "REPORT-ALL-TAGGED", "Trim", "explicit"} {
		_, err := ParseWithDefaults(input)
		assert.NoError(t, err, input)
	}

	_, err := ParseWithDefaults("everything")
	assert.Error(t, err)
}

func TestPeerSupportsChunkedFraming(t *testing.T) {
	assert.False(t, PeerSupportsChunkedFraming([]string{NetconfNS, CapBase10}))
	assert.True(t, PeerSupportsChunkedFraming([]string{NetconfNS, CapBase11}))
}
