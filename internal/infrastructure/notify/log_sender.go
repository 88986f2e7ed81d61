// Package notify holds the final hop for magic link delivery.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sessionguard/authgate/internal/core/ports"
)

// LogSender writes magic links to the log instead of mailing them. Meant for
// development, where the operator copies the link from the console.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, d ports.MagicLinkDelivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info().
		Str("email", d.Email).
		Str("url", d.URL).
		Msg("magic link issued")
	return nil
}
