package mailbox

import (
	"log/slog"

	"github.com/roady-devis/roady-devis-email/internal/config"
)

// NewSession builds a fresh, unconnected session for the configured
// protocol. Each ingestion cycle gets its own session; they are never
// reused.
func NewSession(cfg config.Mailbox, logger *slog.Logger) Session {
	if cfg.GetProtocol() == "pop3" {
		return NewPOP3(cfg, logger)
	}
	return NewIMAP(cfg, logger)
}
