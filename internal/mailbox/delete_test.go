package mailbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/roady-devis/roady-devis-email/internal/config"
)

func TestIMAPCloseBeforeOpen(t *testing.T) {
	sess := NewIMAP(config.Mailbox{Host: "imap.example.com", Port: 993}, slog.Default())
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestIMAPAbortAnytime(t *testing.T) {
	sess := NewIMAP(config.Mailbox{Host: "imap.example.com", Port: 993}, slog.Default())

	sess.Abort()
	sess.Abort()
	if sess.Connected() {
		t.Error("aborted session reports connected")
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close after Abort: %v", err)
	}
}

func TestDeleteValidation(t *testing.T) {
	var protoErr *ProtocolError

	r := NewRemover(config.Mailbox{Protocol: "imap", Host: "h", Port: 993}, slog.Default())
	if err := r.DeleteByMessageID(context.Background(), ""); !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError for empty id, got %v", err)
	}

	r = NewRemover(config.Mailbox{Protocol: "pop3", Host: "h", Port: 110}, slog.Default())
	if err := r.DeleteByMessageID(context.Background(), "x@example.com"); !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError for pop3, got %v", err)
	}
}

func TestDeleteCanceledContext(t *testing.T) {
	// The worker dials an unreachable loopback port while the parent
	// gives up on the already-dead context. Both paths must end in an
	// error, never a panic, whichever wins the race.
	r := NewRemover(config.Mailbox{Protocol: "imap", Host: "127.0.0.1", Port: 1}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.DeleteByMessageID(ctx, "x@example.com"); err == nil {
		t.Fatal("expected an error")
	}
}
