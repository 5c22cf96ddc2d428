package netconf

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrSessionClosed is returned when an RPC is attempted on a session that
// has sent close-session or kill-session.
var ErrSessionClosed = errors.New("netconf: session is closed")

// UnknownDatastoreError reports a datastore string that matches neither the
// named stores nor a URL scheme.
type UnknownDatastoreError struct {
	Expected []string
	Unknown  string
}

func (e *UnknownDatastoreError) Error() string {
	return fmt.Sprintf("unknown datastore %q, (expected [%s])", e.Unknown, strings.Join(e.Expected, ", "))
}

func errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
