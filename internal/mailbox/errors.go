package mailbox

import "fmt"

// ConnectionError reports a failure to establish or authenticate a
// session. It is fatal to the current cycle only; the next scheduled
// trigger retries from scratch.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a failure of a protocol operation on an
// established session (select, search, fetch, flag, expunge).
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
