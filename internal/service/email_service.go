package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roady-devis/roady-devis-email/internal/attach"
	"github.com/roady-devis/roady-devis-email/internal/model"
	"github.com/roady-devis/roady-devis-email/internal/store"
)

// ErrNotFound is returned when the requested email record does not exist.
var ErrNotFound = errors.New("email not found")

// RemoteDeleter deletes a message from the remote mailbox by its
// protocol identity.
type RemoteDeleter interface {
	DeleteByMessageID(ctx context.Context, messageID string) error
}

// EmailService exposes the record operations consumed by the request
// layer: querying, marking processed, and deletion with its best-effort
// remote and attachment cleanup.
type EmailService struct {
	store       store.Store
	attachments *attach.Store
	remote      RemoteDeleter
	logger      *slog.Logger
}

// New creates an EmailService.
func New(s store.Store, attachments *attach.Store, remote RemoteDeleter, logger *slog.Logger) *EmailService {
	return &EmailService{
		store:       s,
		attachments: attachments,
		remote:      remote,
		logger:      logger,
	}
}

// List returns ingested emails, newest first, optionally filtered by
// processing status.
func (s *EmailService) List(ctx context.Context, processed *bool, limit int) ([]model.Email, error) {
	emails, err := s.store.GetEmails(ctx, store.EmailFilter{Processed: processed, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

// Get returns one email record by ID.
func (s *EmailService) Get(ctx context.Context, id string) (*model.Email, error) {
	email, err := s.store.GetEmailByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get email %s: %w", id, err)
	}
	if email == nil {
		return nil, ErrNotFound
	}
	return email, nil
}

// MarkProcessed flags a record as handled by the main application, with
// an optional error text.
func (s *EmailService) MarkProcessed(ctx context.Context, id string, errText string) error {
	if err := s.store.MarkProcessed(ctx, id, errText); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("mark email %s processed: %w", id, err)
	}
	return nil
}

// Delete removes a record. The remote-mailbox deletion and the
// attachment file cleanup are best-effort; the store delete is
// unconditional and its error is the only one that surfaces.
func (s *EmailService) Delete(ctx context.Context, id string) error {
	email, err := s.store.GetEmailByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get email %s: %w", id, err)
	}
	if email == nil {
		return ErrNotFound
	}

	if email.MessageID != "" {
		if err := s.remote.DeleteByMessageID(ctx, email.MessageID); err != nil {
			s.logger.Warn("remote deletion failed, record will be deleted anyway",
				"id", id, "message_id", email.MessageID, "error", err)
		}
	}

	for _, att := range email.Attachments {
		if err := s.attachments.Remove(att.Path); err != nil {
			s.logger.Warn("attachment cleanup failed", "id", id, "path", att.Path, "error", err)
		}
	}

	if err := s.store.DeleteEmail(ctx, id); err != nil {
		return fmt.Errorf("delete email %s: %w", id, err)
	}

	s.logger.Info("email deleted", "id", id)
	return nil
}

// Attachment resolves one attachment descriptor of a record by its
// declared filename, for download.
func (s *EmailService) Attachment(ctx context.Context, id, filename string) (*model.Attachment, error) {
	email, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, att := range email.Attachments {
		if att.Filename == filename {
			return &att, nil
		}
	}
	return nil, ErrNotFound
}
