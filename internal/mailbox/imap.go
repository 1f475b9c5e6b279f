package mailbox

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/roady-devis/roady-devis-email/internal/config"
)

// IMAPSession is a Session over IMAP/IMAPS. Protocol operations belong
// to one goroutine; Abort is the only method safe to call from another.
type IMAPSession struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger

	mu        sync.Mutex
	client    *imapclient.Client
	connected bool
	aborted   bool
}

// NewIMAP creates an IMAP session from the mailbox configuration. The
// session is not connected until Open is called.
func NewIMAP(cfg config.Mailbox, logger *slog.Logger) *IMAPSession {
	return &IMAPSession{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		useTLS:   cfg.UseTLS,
		logger:   logger,
	}
}

func (s *IMAPSession) addr() string {
	return net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
}

// Open dials the server and authenticates. Dial and login failures both
// surface as a ConnectionError.
func (s *IMAPSession) Open() error {
	addr := s.addr()

	var client *imapclient.Client
	var err error

	if s.useTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: s.host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		client.Close()
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("login %s: %w", s.username, err)}
	}

	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		client.Close()
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("session aborted")}
	}
	s.client = client
	s.connected = true
	s.mu.Unlock()

	s.logger.Debug("imap session opened", "addr", addr)
	return nil
}

// SelectFolder selects the named folder.
func (s *IMAPSession) SelectFolder(name string) (Stats, error) {
	data, err := s.client.Select(name, nil).Wait()
	if err != nil {
		return Stats{}, &ProtocolError{Op: fmt.Sprintf("select %s", name), Err: err}
	}
	return Stats{Messages: data.NumMessages}, nil
}

// Search enumerates candidate messages in the selected folder.
func (s *IMAPSession) Search(criteria Criteria) ([]MessageRef, error) {
	search := &imap.SearchCriteria{}
	if criteria == CriteriaUnseen {
		search.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	data, err := s.client.UIDSearch(search, nil).Wait()
	if err != nil {
		return nil, &ProtocolError{Op: "search", Err: err}
	}

	uids := data.AllUIDs()
	refs := make([]MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, MessageRef(uid))
	}
	return refs, nil
}

// FetchEach streams the full raw body of each referenced message. The
// fetch does not use PEEK, so retrieved messages gain the \Seen flag,
// which keeps re-polls under the unseen criteria from re-enumerating
// them.
func (s *IMAPSession) FetchEach(refs []MessageRef, fn func(ref MessageRef, raw []byte) error) error {
	if len(refs) == 0 {
		return nil
	}

	uids := make([]imap.UID, 0, len(refs))
	for _, ref := range refs {
		uids = append(uids, imap.UID(ref))
	}
	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{}
	fetchCmd := s.client.Fetch(uidSet, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			return &ProtocolError{Op: "fetch", Err: err}
		}

		raw := buf.FindBodySection(bodySection)
		if len(raw) == 0 {
			s.logger.Warn("empty body, skipping", "uid", uint32(buf.UID))
			continue
		}

		if err := fn(MessageRef(buf.UID), raw); err != nil {
			return err
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return &ProtocolError{Op: "fetch", Err: err}
	}
	return nil
}

// Connected reports whether the session currently holds a live connection.
func (s *IMAPSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Abort severs the connection without the Logout round-trip, so it
// cannot block on a hung server. Commands in flight on the owning
// goroutine fail with a connection error; the client field is left in
// place for them to trip over safely. Safe to call at any point in the
// session lifecycle, from any goroutine, any number of times.
func (s *IMAPSession) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.connected = false
	client := s.client
	s.mu.Unlock()

	if client != nil {
		client.Close()
		s.logger.Debug("imap session aborted")
	}
}

// Close logs out and tears down the connection. It is safe to call
// multiple times and before Open, but only from the goroutine that owns
// the session; cross-goroutine teardown goes through Abort.
func (s *IMAPSession) Close() error {
	s.mu.Lock()
	client := s.client
	wasConnected := s.connected
	s.client = nil
	s.connected = false
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	// After an abort the wire is already dead; a Logout would only
	// block on it.
	if wasConnected {
		if err := client.Logout().Wait(); err != nil {
			s.logger.Debug("imap logout failed", "error", err)
		}
	}
	client.Close()
	s.logger.Debug("imap session closed")
	return nil
}
