// Package mail delivers sign-in codes and partner invites.
package mail

import (
	"context"

	"go.uber.org/zap"
)

// Mailer sends transactional email.
type Mailer interface {
	SendLoginCode(ctx context.Context, email, code string) error
	SendInvite(ctx context.Context, email, code, locketName string) error
}

// LogMailer writes messages to the log instead of sending them. Codes are only
// included outside production.
type LogMailer struct {
	log        *zap.Logger
	revealCode bool
}

// NewLogMailer returns a Mailer that logs; revealCode prints the code itself.
func NewLogMailer(log *zap.Logger, revealCode bool) *LogMailer {
	return &LogMailer{log: log, revealCode: revealCode}
}

func (m *LogMailer) SendLoginCode(ctx context.Context, email, code string) error {
	fields := []zap.Field{zap.String("email", email)}
	if m.revealCode {
		fields = append(fields, zap.String("code", code))
	}
	m.log.Info("login code issued", fields...)
	return nil
}

func (m *LogMailer) SendInvite(ctx context.Context, email, code, locketName string) error {
	fields := []zap.Field{zap.String("email", email), zap.String("locket", locketName)}
	if m.revealCode {
		fields = append(fields, zap.String("code", code))
	}
	m.log.Info("invite issued", fields...)
	return nil
}
