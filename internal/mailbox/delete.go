package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/roady-devis/roady-devis-email/internal/config"
)

// deleteTimeout bounds the lifetime of a dedicated deletion connection.
// Exceeding it fails the deletion attempt, never the process.
const deleteTimeout = 30 * time.Second

// Remover deletes single messages from the remote mailbox by identity.
// Each call opens its own dedicated connection so that deletions issued
// from request handlers never touch a polling session that may be in
// flight concurrently.
type Remover struct {
	cfg    config.Mailbox
	logger *slog.Logger
}

// NewRemover creates a Remover for the configured mailbox.
func NewRemover(cfg config.Mailbox, logger *slog.Logger) *Remover {
	return &Remover{cfg: cfg, logger: logger}
}

// DeleteByMessageID flags every message whose Message-ID header matches
// and expunges them. The connection is always closed, whatever the
// outcome. POP3 accounts cannot delete by identity; they report a
// ProtocolError the caller treats as best-effort failure.
func (r *Remover) DeleteByMessageID(ctx context.Context, messageID string) error {
	if messageID == "" {
		return &ProtocolError{Op: "delete", Err: fmt.Errorf("empty message id")}
	}
	if r.cfg.GetProtocol() != "imap" {
		return &ProtocolError{Op: "delete", Err: fmt.Errorf("remote deletion unsupported over %s", r.cfg.GetProtocol())}
	}

	sess := NewIMAP(r.cfg, r.logger)

	// The worker goroutine owns the session and closes it when it
	// finishes. The abort paths only sever the wire, so a hung server
	// can fail the operation but never panic or block the process.
	done := make(chan error, 1)
	go func() {
		err := r.deleteOn(sess, messageID)
		sess.Close()
		done <- err
	}()

	timer := time.NewTimer(deleteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		sess.Abort()
		return &ProtocolError{Op: "delete", Err: ctx.Err()}
	case <-timer.C:
		sess.Abort()
		r.logger.Warn("remote deletion timed out", "message_id", messageID, "timeout", deleteTimeout)
		return &ProtocolError{Op: "delete", Err: context.DeadlineExceeded}
	}
}

func (r *Remover) deleteOn(sess *IMAPSession, messageID string) error {
	if err := sess.Open(); err != nil {
		return err
	}
	if _, err := sess.SelectFolder(r.cfg.GetFolder()); err != nil {
		return err
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: messageID},
		},
	}
	data, err := sess.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return &ProtocolError{Op: "search message-id", Err: err}
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		r.logger.Debug("message not found on server", "message_id", messageID)
		return nil
	}

	uidSet := imap.UIDSetNum(uids...)
	storeCmd := sess.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return &ProtocolError{Op: "store deleted", Err: err}
	}

	if err := sess.client.Expunge().Close(); err != nil {
		return &ProtocolError{Op: "expunge", Err: err}
	}

	r.logger.Info("deleted from remote mailbox", "message_id", messageID, "count", len(uids))
	return nil
}
