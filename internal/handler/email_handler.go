package handler

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/roady-devis/roady-devis-email/internal/sender"
	"github.com/roady-devis/roady-devis-email/internal/service"
)

// Trigger requests an out-of-band ingestion cycle.
type Trigger interface {
	TriggerNow()
}

// EmailHandler is the thin request layer over the email service, the
// outbound sender, and the ingestion trigger.
type EmailHandler struct {
	service *service.EmailService
	sender  *sender.Sender
	trigger Trigger
	logger  *slog.Logger
}

// NewEmailHandler creates an EmailHandler.
func NewEmailHandler(svc *service.EmailService, snd *sender.Sender, trigger Trigger, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{
		service: svc,
		sender:  snd,
		trigger: trigger,
		logger:  logger,
	}
}

// Health reports service liveness.
func (h *EmailHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"service":   "roady-devis-email",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type sendRequest struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// Send delivers an email through the outbound relay.
func (h *EmailHandler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.To) == 0 || req.Subject == "" || (req.Text == "" && req.HTML == "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "required fields: to, subject, and (text or html)",
		})
	}

	messageID, err := h.sender.Send(c.Context(), req.To, req.Subject, req.Text, req.HTML)
	if err != nil {
		h.logger.Error("send failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"messageId": messageID,
	})
}

// Check requests an ingestion cycle and returns immediately; the outcome
// of the cycle is not part of the response.
func (h *EmailHandler) Check(c *fiber.Ctx) error {
	h.trigger.TriggerNow()
	return c.JSON(fiber.Map{"success": true})
}

// ListReceived returns ingested emails, newest first. Query parameters:
// processed (true/false) and limit.
func (h *EmailHandler) ListReceived(c *fiber.Ctx) error {
	var processed *bool
	if raw := c.Query("processed"); raw != "" {
		v := raw == "true"
		processed = &v
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	emails, err := h.service.List(c.Context(), processed, limit)
	if err != nil {
		h.logger.Error("list failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"count":  len(emails),
		"emails": emails,
	})
}

// Get returns one email record.
func (h *EmailHandler) Get(c *fiber.Ctx) error {
	email, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(email)
}

type markProcessedRequest struct {
	Error string `json:"error"`
}

// MarkProcessed flags a record as handled by the main application.
func (h *EmailHandler) MarkProcessed(c *fiber.Ctx) error {
	var req markProcessedRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	if err := h.service.MarkProcessed(c.Context(), c.Params("id"), req.Error); err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Delete removes a record, its attachments, and best-effort the remote
// copy.
func (h *EmailHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// DownloadAttachment streams one stored attachment.
func (h *EmailHandler) DownloadAttachment(c *fiber.Ctx) error {
	att, err := h.service.Attachment(c.Context(), c.Params("id"), c.Params("filename"))
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.Download(att.Path, att.Filename)
}

func (h *EmailHandler) serviceError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "email not found"})
	}
	h.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
