package mail

import (
	"context"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

var _ model.Mailer = (*LogMailer)(nil)

// LogMailer is the default mail backend. Deployments without an outbound
// mail relay still get the code and link in the server log, which is what
// local and staging environments run with.
type LogMailer struct {
	logger *logger.Logger
}

func NewLogMailer(logger *logger.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, email, code, verifyLink string) error {
	m.logger.Info("mail: verification code issued",
		"email", email,
		"code", code,
		"verify_link", verifyLink)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, resetLink string) error {
	m.logger.Info("mail: password reset link issued",
		"email", email,
		"reset_link", resetLink)
	return nil
}
