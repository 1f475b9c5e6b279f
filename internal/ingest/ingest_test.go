package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roady-devis/roady-devis-email/internal/attach"
	"github.com/roady-devis/roady-devis-email/internal/config"
	"github.com/roady-devis/roady-devis-email/internal/dedup"
	"github.com/roady-devis/roady-devis-email/internal/mailbox"
	"github.com/roady-devis/roady-devis-email/internal/model"
	"github.com/roady-devis/roady-devis-email/internal/store"
)

// fakeSession is an in-memory mailbox for driving cycles without a
// server.
type fakeSession struct {
	openErr  error
	unseen   []mailbox.MessageRef
	all      []mailbox.MessageRef
	messages map[mailbox.MessageRef][]byte

	connected bool
	closed    bool
}

func (f *fakeSession) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.connected = true
	return nil
}

func (f *fakeSession) SelectFolder(name string) (mailbox.Stats, error) {
	return mailbox.Stats{Messages: uint32(len(f.all))}, nil
}

func (f *fakeSession) Search(criteria mailbox.Criteria) ([]mailbox.MessageRef, error) {
	if criteria == mailbox.CriteriaAll {
		return f.all, nil
	}
	return f.unseen, nil
}

func (f *fakeSession) FetchEach(refs []mailbox.MessageRef, fn func(ref mailbox.MessageRef, raw []byte) error) error {
	for _, ref := range refs {
		if err := fn(ref, f.messages[ref]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSession) Connected() bool { return f.connected }

func (f *fakeSession) Close() error {
	f.connected = false
	f.closed = true
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	emails []*model.Email
}

func (n *fakeNotifier) Notify(email *model.Email) {
	n.mu.Lock()
	n.emails = append(n.emails, email)
	n.mu.Unlock()
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.emails)
}

func rawMessage(id, subject string) []byte {
	return []byte("From: Alice <alice@example.com>\r\n" +
		"To: quotes@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Tue, 10 Jun 2025 10:00:00 +0000\r\n" +
		"Message-ID: <" + id + "@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"body of " + subject + "\r\n")
}

func rawMessageWithAttachment(id string) []byte {
	return []byte("From: alice@example.com\r\n" +
		"Subject: with file\r\n" +
		"Date: Tue, 10 Jun 2025 10:00:00 +0000\r\n" +
		"Message-ID: <" + id + "@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=FRONTIER\r\n" +
		"\r\n" +
		"--FRONTIER\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--FRONTIER\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=\"quote.pdf\"\r\n" +
		"\r\n" +
		"pdf bytes here\r\n" +
		"--FRONTIER--\r\n")
}

func newTestIngestor(t *testing.T, newSession func() mailbox.Session) (*Ingestor, *store.SQLiteStore, *fakeNotifier, *attach.Store) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.Default()
	attachments := attach.NewStore(filepath.Join(t.TempDir(), "attachments"))
	notifier := &fakeNotifier{}

	ing := New(config.Mailbox{}, newSession, attachments, s, dedup.NewGate(s, logger), notifier, logger)
	return ing, s, notifier, attachments
}

func TestCycleEmptyMailbox(t *testing.T) {
	sess := &fakeSession{}
	ing, _, notifier, _ := newTestIngestor(t, func() mailbox.Session { return sess })

	sum, err := ing.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Candidates != 0 || sum.Ingested != 0 || sum.Duplicates != 0 || sum.Failed != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
	if notifier.count() != 0 {
		t.Errorf("unexpected notifications: %d", notifier.count())
	}
}

func TestCycleIngestThenDeduplicate(t *testing.T) {
	messages := map[mailbox.MessageRef][]byte{
		1: rawMessage("first", "Quote A"),
		2: rawMessage("second", "Quote B"),
	}
	newSession := func() mailbox.Session {
		return &fakeSession{
			unseen:   []mailbox.MessageRef{1, 2},
			all:      []mailbox.MessageRef{1, 2},
			messages: messages,
		}
	}
	ing, s, notifier, _ := newTestIngestor(t, newSession)
	ctx := context.Background()

	sum, err := ing.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Candidates != 2 || sum.Ingested != 2 || sum.Duplicates != 0 {
		t.Fatalf("first cycle summary: %+v", sum)
	}
	if notifier.count() != 2 {
		t.Errorf("expected 2 notifications, got %d", notifier.count())
	}

	// Redelivery of the same messages in a later cycle must not create
	// second records.
	sum, err = ing.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Ingested != 0 || sum.Duplicates != 2 {
		t.Fatalf("second cycle summary: %+v", sum)
	}
	if notifier.count() != 2 {
		t.Errorf("duplicates were notified: %d", notifier.count())
	}

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("expected 2 records, got %d", len(emails))
	}
}

func TestCycleMalformedMessage(t *testing.T) {
	newSession := func() mailbox.Session {
		return &fakeSession{
			unseen: []mailbox.MessageRef{1, 2},
			messages: map[mailbox.MessageRef][]byte{
				1: []byte("this is not an email"),
				2: rawMessage("ok", "readable"),
			},
		}
	}
	ing, s, _, _ := newTestIngestor(t, newSession)
	ctx := context.Background()

	sum, err := ing.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Candidates != 2 || sum.Ingested != 1 || sum.Failed != 1 {
		t.Fatalf("summary: %+v", sum)
	}

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 1 || emails[0].Subject != "readable" {
		t.Fatalf("unexpected records: %+v", emails)
	}
}

func TestCycleUnseenCriteria(t *testing.T) {
	messages := make(map[mailbox.MessageRef][]byte)
	for i := mailbox.MessageRef(1); i <= 5; i++ {
		messages[i] = rawMessage(fmt.Sprintf("msg-%d", i), fmt.Sprintf("Subject %d", i))
	}
	newSession := func() mailbox.Session {
		return &fakeSession{
			unseen:   []mailbox.MessageRef{3, 4, 5},
			all:      []mailbox.MessageRef{1, 2, 3, 4, 5},
			messages: messages,
		}
	}
	ing, _, _, _ := newTestIngestor(t, newSession)

	sum, err := ing.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Candidates != 3 || sum.Ingested != 3 {
		t.Fatalf("summary: %+v", sum)
	}
}

func TestCycleConnectFailure(t *testing.T) {
	sess := &fakeSession{
		openErr: &mailbox.ConnectionError{Addr: "imap.example.com:993", Err: errors.New("refused")},
	}
	ing, s, notifier, _ := newTestIngestor(t, func() mailbox.Session { return sess })
	ctx := context.Background()

	_, err := ing.Cycle(ctx)
	if err == nil {
		t.Fatal("expected an error")
	}
	var connErr *mailbox.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %T: %v", err, err)
	}
	if !sess.closed {
		t.Error("session not closed after failed open")
	}
	if notifier.count() != 0 {
		t.Errorf("unexpected notifications: %d", notifier.count())
	}

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 0 {
		t.Fatalf("unexpected records: %+v", emails)
	}
}

func TestCycleFullBatch(t *testing.T) {
	// A batch of distinct well-formed messages lands in full; the
	// concurrent writers queue on the store instead of failing.
	const n = 16
	messages := make(map[mailbox.MessageRef][]byte, n)
	refs := make([]mailbox.MessageRef, 0, n)
	for i := 1; i <= n; i++ {
		ref := mailbox.MessageRef(i)
		refs = append(refs, ref)
		messages[ref] = rawMessage(fmt.Sprintf("batch-%d", i), fmt.Sprintf("Quote %d", i))
	}
	newSession := func() mailbox.Session {
		return &fakeSession{unseen: refs, messages: messages}
	}
	ing, s, notifier, _ := newTestIngestor(t, newSession)
	ctx := context.Background()

	sum, err := ing.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Candidates != n || sum.Ingested != n || sum.Duplicates != 0 || sum.Failed != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if notifier.count() != n {
		t.Errorf("expected %d notifications, got %d", n, notifier.count())
	}

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != n {
		t.Fatalf("expected %d records, got %d", n, len(emails))
	}
}

func TestCycleSameIdentityAcrossBatch(t *testing.T) {
	// Every copy of one message in a batch resolves to exactly one
	// record, however the concurrent admissions interleave.
	const n = 16
	raw := rawMessage("same-identity", "Quote")
	messages := make(map[mailbox.MessageRef][]byte, n)
	refs := make([]mailbox.MessageRef, 0, n)
	for i := 1; i <= n; i++ {
		ref := mailbox.MessageRef(i)
		refs = append(refs, ref)
		messages[ref] = raw
	}
	newSession := func() mailbox.Session {
		return &fakeSession{unseen: refs, messages: messages}
	}
	ing, s, notifier, _ := newTestIngestor(t, newSession)
	ctx := context.Background()

	sum, err := ing.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Ingested != 1 || sum.Duplicates != n-1 || sum.Failed != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", notifier.count())
	}

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("expected 1 record, got %d", len(emails))
	}
}

func TestCycleStoresAttachments(t *testing.T) {
	newSession := func() mailbox.Session {
		return &fakeSession{
			unseen: []mailbox.MessageRef{1},
			messages: map[mailbox.MessageRef][]byte{
				1: rawMessageWithAttachment("att"),
			},
		}
	}
	ing, s, _, attachments := newTestIngestor(t, newSession)
	ctx := context.Background()

	sum, err := ing.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if sum.Ingested != 1 {
		t.Fatalf("summary: %+v", sum)
	}

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(emails) != 1 || len(emails[0].Attachments) != 1 {
		t.Fatalf("unexpected records: %+v", emails)
	}

	att := emails[0].Attachments[0]
	if att.Filename != "quote.pdf" {
		t.Errorf("filename = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("content type = %q", att.ContentType)
	}

	data, err := attachments.Read(att.Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(data, []byte("pdf bytes here")) {
		t.Errorf("stored bytes = %q", data)
	}
	if att.Size != int64(len(data)) {
		t.Errorf("size = %d, file is %d bytes", att.Size, len(data))
	}
}
