package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roady-devis/roady-devis-email/internal/attach"
	"github.com/roady-devis/roady-devis-email/internal/config"
	"github.com/roady-devis/roady-devis-email/internal/dedup"
	"github.com/roady-devis/roady-devis-email/internal/mailbox"
	"github.com/roady-devis/roady-devis-email/internal/message"
	"github.com/roady-devis/roady-devis-email/internal/model"
	"github.com/roady-devis/roady-devis-email/internal/store"
)

// Notifier tells a downstream system about a newly ingested email.
// Implementations are best-effort and must never block ingestion on the
// downstream's availability.
type Notifier interface {
	Notify(email *model.Email)
}

// Summary reports what one ingestion cycle did.
type Summary struct {
	Candidates int
	Ingested   int
	Duplicates int
	Failed     int
	Duration   time.Duration
}

// Ingestor drives one polling cycle: open a session, enumerate, fetch,
// parse, deduplicate, persist, notify, and close the session whatever
// happens.
type Ingestor struct {
	cfg         config.Mailbox
	newSession  func() mailbox.Session
	attachments *attach.Store
	store       store.Store
	gate        *dedup.Gate
	notifier    Notifier
	logger      *slog.Logger
}

// New creates an Ingestor. newSession must return a fresh, unconnected
// session on every call.
func New(
	cfg config.Mailbox,
	newSession func() mailbox.Session,
	attachments *attach.Store,
	s store.Store,
	gate *dedup.Gate,
	notifier Notifier,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		cfg:         cfg,
		newSession:  newSession,
		attachments: attachments,
		store:       s,
		gate:        gate,
		notifier:    notifier,
		logger:      logger,
	}
}

// Cycle runs one complete ingestion cycle. Session, select, and
// enumeration errors fail the whole cycle; a single message failing to
// parse or persist does not. The session is closed on every exit path,
// after all per-message work has finished.
func (ing *Ingestor) Cycle(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	defer func() { sum.Duration = time.Since(start) }()

	sess := ing.newSession()
	defer sess.Close()

	if err := sess.Open(); err != nil {
		return sum, err
	}

	folder := ing.cfg.GetFolder()
	stats, err := sess.SelectFolder(folder)
	if err != nil {
		return sum, err
	}
	ing.logger.Debug("folder selected", "folder", folder, "messages", stats.Messages)

	refs, err := sess.Search(mailbox.Criteria(ing.cfg.GetCriteria()))
	if err != nil {
		return sum, err
	}
	sum.Candidates = len(refs)

	if len(refs) == 0 {
		ing.logger.Debug("no candidate messages")
		return sum, nil
	}
	ing.logger.Info("found candidate messages", "count", len(refs))

	// Messages from one batch are processed concurrently, but every one
	// of them is accounted for before the session closes.
	var wg sync.WaitGroup
	var mu sync.Mutex

	fetchErr := sess.FetchEach(refs, func(ref mailbox.MessageRef, raw []byte) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ing.process(ctx, ref, raw, &sum, &mu)
		}()
		return nil
	})
	wg.Wait()

	if fetchErr != nil {
		return sum, fetchErr
	}

	ing.logger.Info("cycle finished",
		"candidates", sum.Candidates,
		"ingested", sum.Ingested,
		"duplicates", sum.Duplicates,
		"failed", sum.Failed,
		"duration", time.Since(start),
	)
	return sum, nil
}

// process handles a single fetched message. Its failures are recorded in
// the summary and never escalate to the cycle. mu guards the Ingested,
// Duplicates, and Failed counters; Candidates and Duration are written
// by Cycle alone, outside the fan-out.
func (ing *Ingestor) process(ctx context.Context, ref mailbox.MessageRef, raw []byte, sum *Summary, mu *sync.Mutex) {
	count := func(c *int) {
		mu.Lock()
		*c++
		mu.Unlock()
	}

	parsed, err := message.Parse(raw)
	if err != nil {
		ing.logger.Error("parse failed, skipping message", "ref", uint32(ref), "error", err)
		count(&sum.Failed)
		return
	}

	// Attachment bytes are written before the gate runs; if the message
	// turns out to be a duplicate, the files stay behind as orphans
	// rather than holding the cycle hostage to transactional cleanup.
	descriptors := make([]model.Attachment, 0, len(parsed.Attachments))
	for _, att := range parsed.Attachments {
		path, err := ing.attachments.Save(att.Filename, att.Content)
		if err != nil {
			ing.logger.Error("attachment write failed, skipping message",
				"ref", uint32(ref), "filename", att.Filename, "error", err)
			count(&sum.Failed)
			return
		}
		descriptors = append(descriptors, model.Attachment{
			Filename:    att.Filename,
			Path:        path,
			Size:        att.Size,
			ContentType: att.ContentType,
		})
	}

	decision, err := ing.gate.Admit(ctx, parsed)
	if err != nil {
		ing.logger.Error("dedup lookup failed, skipping message", "ref", uint32(ref), "error", err)
		count(&sum.Failed)
		return
	}
	if !decision.Admitted {
		ing.logger.Info("duplicate rejected", "ref", uint32(ref), "reason", decision.Reason)
		count(&sum.Duplicates)
		return
	}

	email := &model.Email{
		From:        parsed.From,
		To:          parsed.To,
		Subject:     parsed.Subject,
		Body:        parsed.Text,
		BodyHTML:    parsed.HTML,
		ReceivedAt:  parsed.Date,
		Attachments: descriptors,
		MessageID:   parsed.MessageID,
		InReplyTo:   parsed.InReplyTo,
		References:  parsed.References,
	}

	if err := ing.store.CreateEmail(ctx, email); err != nil {
		// Two copies of one message in the same batch can both clear the
		// gate; the store's unique Message-ID index decides the race.
		if store.IsDuplicate(err) {
			ing.logger.Info("duplicate rejected", "ref", uint32(ref), "reason", err.Error())
			count(&sum.Duplicates)
			return
		}
		ing.logger.Error("persist failed, skipping message", "ref", uint32(ref), "error", err)
		count(&sum.Failed)
		return
	}

	ing.logger.Info("email ingested",
		"id", email.ID,
		"from", email.From,
		"subject", email.Subject,
		"attachments", len(email.Attachments),
	)
	count(&sum.Ingested)

	ing.notifier.Notify(email)
}
