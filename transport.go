package netconf

// The Secure Transport layer provides a communication path between
// the client and server.  NETCONF can be layered over any
// transport protocol that provides a set of basic requirements.

// Transport defines the capability set the Session depends on: a duplex,
// message-framed byte stream bound to one NETCONF peer.
type Transport interface {
	// Receive reads the next framed message from the peer.
	Receive() (string, error)

	// Write frames and writes a message to the peer.
	Write(msg string) error

	// WriteAndReceive writes a message and reads the single reply.
	WriteAndReceive(msg string) (string, error)

	// Upgrade switches the underlying framing from end-of-message to
	// chunked, after base:1.1 has been negotiated.
	Upgrade()

	// Close releases the transport and its underlying connection.
	Close() error
}
