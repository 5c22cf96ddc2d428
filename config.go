package netconf

// Defines structs describing netconf configuration.

// Config defines properties that configure netconf session behaviour.
type Config struct {
	// Defines the time in seconds that the client will wait to receive a hello message from the server.
	SetupTimeoutSecs int
	// Capabilities advertised in the client hello.
	Capabilities []string
	// Indicates that replies should be returned without parsing them for
	// rpc-error records.
	SkipReplyParsing bool
}

var DefaultConfig = &Config{
	SetupTimeoutSecs: 5,
	Capabilities:     DefaultCapabilities,
}
