package model

import "time"

// Email is the durable record of one ingested message.
type Email struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	BodyHTML    string       `json:"bodyHtml,omitempty"`
	ReceivedAt  time.Time    `json:"receivedAt"`
	Attachments []Attachment `json:"attachments"`
	Processed   bool         `json:"processed"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
	MessageID   string       `json:"messageId,omitempty"`
	InReplyTo   string       `json:"inReplyTo,omitempty"`
	References  []string     `json:"references,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Attachment describes one stored attachment of an email.
// The file on disk is owned by the parent record and removed with it.
type Attachment struct {
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// HasAttachments reports whether the email carries at least one attachment.
func (e *Email) HasAttachments() bool {
	return len(e.Attachments) > 0
}
