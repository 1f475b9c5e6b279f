package mailbox

// Criteria selects which messages in the mailbox are candidates for a cycle.
type Criteria string

const (
	// CriteriaUnseen enumerates only messages without the \Seen flag.
	CriteriaUnseen Criteria = "unseen"
	// CriteriaAll enumerates every message in the selected folder.
	CriteriaAll Criteria = "all"
)

// MessageRef identifies one message within an open session. For IMAP it is
// the UID, for POP3 the message number. Refs are only valid for the session
// that produced them.
type MessageRef uint32

// Stats summarizes the selected folder.
type Stats struct {
	Messages uint32
}

// Session is a live connection to a remote message store. Implementations
// are not safe for concurrent use; one session serves exactly one
// ingestion cycle. Close is idempotent and safe to call even if Open
// never succeeded.
type Session interface {
	Open() error
	SelectFolder(name string) (Stats, error)
	Search(criteria Criteria) ([]MessageRef, error)

	// FetchEach retrieves the raw bytes of each referenced message and
	// invokes fn once per message, in server order. The sequence is not
	// restartable. The raw slice is owned by the callback.
	FetchEach(refs []MessageRef, fn func(ref MessageRef, raw []byte) error) error

	Connected() bool
	Close() error
}
