package model

import "context"

// Mailer delivers transactional mail. The production implementation lives
// outside this repository; the default logs instead of sending.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code, verifyLink string) error
	SendPasswordReset(ctx context.Context, email, resetLink string) error
}
