package mailbox

import (
	"fmt"
	"log/slog"
	"net"

	pop3client "github.com/knadh/go-pop3"

	"github.com/roady-devis/roady-devis-email/internal/config"
)

// POP3Session is a Session over POP3/POP3S. POP3 has no folders and no
// flags, so SelectFolder ignores the folder name and Search treats every
// criteria as "all". Messages are not deleted on retrieval; dedup against
// the record store is what keeps re-polls idempotent.
type POP3Session struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger

	conn      *pop3client.Conn
	connected bool
}

// NewPOP3 creates a POP3 session from the mailbox configuration.
func NewPOP3(cfg config.Mailbox, logger *slog.Logger) *POP3Session {
	return &POP3Session{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		useTLS:   cfg.UseTLS,
		logger:   logger,
	}
}

// Open dials the server and authenticates.
func (s *POP3Session) Open() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	client := pop3client.New(pop3client.Opt{
		Host:       s.host,
		Port:       s.port,
		TLSEnabled: s.useTLS,
	})
	conn, err := client.NewConn()
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	if err := conn.Auth(s.username, s.password); err != nil {
		_ = conn.Quit()
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("auth %s: %w", s.username, err)}
	}

	s.conn = conn
	s.connected = true
	s.logger.Debug("pop3 session opened", "addr", addr)
	return nil
}

// SelectFolder reports the maildrop statistics. POP3 has a single
// implicit maildrop, so name is ignored.
func (s *POP3Session) SelectFolder(name string) (Stats, error) {
	count, _, err := s.conn.Stat()
	if err != nil {
		return Stats{}, &ProtocolError{Op: "stat", Err: err}
	}
	return Stats{Messages: uint32(count)}, nil
}

// Search lists every message in the maildrop. The unseen criteria cannot
// be honored over POP3; it degrades to "all" with a debug log.
func (s *POP3Session) Search(criteria Criteria) ([]MessageRef, error) {
	if criteria == CriteriaUnseen {
		s.logger.Debug("pop3 has no message flags, enumerating all messages")
	}

	msgs, err := s.conn.List(0)
	if err != nil {
		return nil, &ProtocolError{Op: "list", Err: err}
	}

	refs := make([]MessageRef, 0, len(msgs))
	for _, msg := range msgs {
		refs = append(refs, MessageRef(msg.ID))
	}
	return refs, nil
}

// FetchEach retrieves the raw bytes of each referenced message.
func (s *POP3Session) FetchEach(refs []MessageRef, fn func(ref MessageRef, raw []byte) error) error {
	for _, ref := range refs {
		buf, err := s.conn.RetrRaw(int(ref))
		if err != nil {
			return &ProtocolError{Op: fmt.Sprintf("retr %d", ref), Err: err}
		}
		if err := fn(ref, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Connected reports whether the session currently holds a live connection.
func (s *POP3Session) Connected() bool {
	return s.connected
}

// Close quits the connection. Safe to call multiple times and before Open.
func (s *POP3Session) Close() error {
	if s.conn == nil {
		return nil
	}

	if err := s.conn.Quit(); err != nil {
		s.logger.Debug("pop3 quit failed", "error", err)
	}
	s.conn = nil
	s.connected = false
	s.logger.Debug("pop3 session closed")
	return nil
}
