package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roady-devis/roady-devis-email/internal/message"
	"github.com/roady-devis/roady-devis-email/internal/store"
)

// Decision is the outcome of the gate for one parsed message.
type Decision struct {
	Admitted bool
	Reason   string // set when rejected
}

// Gate decides whether a parsed message has already been ingested.
//
// The primary key is the protocol-assigned Message-ID. When a message
// carries none, the composite (subject, declared receipt time, sender
// text) triple is used instead. Two distinct messages with an identical
// triple at the same truncated-to-second timestamp are indistinguishable
// to the fallback; that is a known limitation carried over from the
// upstream behavior.
type Gate struct {
	store  store.Store
	logger *slog.Logger
}

// NewGate creates a Gate over the record store.
func NewGate(s store.Store, logger *slog.Logger) *Gate {
	return &Gate{store: s, logger: logger}
}

// Admit reports whether the parsed message may be persisted. It must run
// before the record is created. The lookup and the later insert are not
// one atomic step; when two copies of a message clear the gate at once,
// the store's unique Message-ID index decides which insert wins.
func (g *Gate) Admit(ctx context.Context, p *message.Parsed) (Decision, error) {
	if p.MessageID != "" {
		existing, err := g.store.FindByMessageID(ctx, p.MessageID)
		if err != nil {
			return Decision{}, fmt.Errorf("dedup lookup by message-id: %w", err)
		}
		if existing != nil {
			return Decision{Reason: fmt.Sprintf("message-id %s already ingested", p.MessageID)}, nil
		}
		return Decision{Admitted: true}, nil
	}

	existing, err := g.store.FindByFallbackKey(ctx, p.Subject, p.Date, p.From)
	if err != nil {
		return Decision{}, fmt.Errorf("dedup lookup by fallback key: %w", err)
	}
	if existing != nil {
		return Decision{Reason: "subject/date/sender already ingested"}, nil
	}
	return Decision{Admitted: true}, nil
}
