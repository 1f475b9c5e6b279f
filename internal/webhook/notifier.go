package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roady-devis/roady-devis-email/internal/model"
)

// notifyTimeout bounds one notification call.
const notifyTimeout = 10 * time.Second

type attachmentPayload struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	DownloadURL string `json:"downloadUrl"`
}

type notifyPayload struct {
	EmailID        string              `json:"emailId"`
	From           string              `json:"from"`
	To             []string            `json:"to"`
	Subject        string              `json:"subject"`
	ReceivedAt     time.Time           `json:"receivedAt"`
	HasAttachments bool                `json:"hasAttachments"`
	Attachments    []attachmentPayload `json:"attachments"`
}

// Notifier tells the main application that a new email was received.
// Notifications are fire-and-forget: every failure is logged and
// swallowed, ingestion never depends on the downstream being up.
type Notifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Notifier for the main application at baseURL.
func New(baseURL, apiKey string, logger *slog.Logger) *Notifier {
	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: notifyTimeout},
		logger:  logger,
	}
}

// Notify posts the email-received payload to the main application.
func (n *Notifier) Notify(email *model.Email) {
	attachments := make([]attachmentPayload, 0, len(email.Attachments))
	for _, att := range email.Attachments {
		attachments = append(attachments, attachmentPayload{
			Filename:    att.Filename,
			Size:        att.Size,
			ContentType: att.ContentType,
			DownloadURL: fmt.Sprintf("/api/email/%s/attachment/%s", email.ID, att.Filename),
		})
	}

	payload := notifyPayload{
		EmailID:        email.ID,
		From:           email.From,
		To:             email.To,
		Subject:        email.Subject,
		ReceivedAt:     email.ReceivedAt,
		HasAttachments: email.HasAttachments(),
		Attachments:    attachments,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("webhook payload marshal failed", "email_id", email.ID, "error", err)
		return
	}

	url := n.baseURL + "/api/webhooks/email-received"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("webhook request build failed", "email_id", email.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook notification failed", "email_id", email.ID, "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		n.logger.Warn("webhook notification rejected",
			"email_id", email.ID,
			"status", resp.StatusCode,
			"body", string(detail),
		)
		return
	}

	n.logger.Info("webhook notification sent", "email_id", email.ID, "status", resp.StatusCode)
}
