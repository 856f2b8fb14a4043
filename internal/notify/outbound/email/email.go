package email

import (
	"context"
	"errors"
	"net/textproto"
	"time"

	"github.com/fundward/fundward/internal/notify/entity"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/mail"
	"go.opentelemetry.io/otel/codes"
)

// Adapter delivers email notifications through the shared mail client. A nil
// client means email is not configured in this deployment.
type Adapter struct {
	client  mail.Mail
	timeout time.Duration
	ins     instrument.Instrumentation
}

func New(client mail.Mail, timeout time.Duration, ins instrument.Instrumentation) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Adapter{client: client, timeout: timeout, ins: ins}
}

func (a *Adapter) Configured() bool {
	return a.client != nil
}

func (a *Adapter) Send(ctx context.Context, target entity.DeliveryTarget, content entity.Content) entity.SendResult {
	ctx, span := a.ins.Tracer("notify.outbound.email").Start(ctx, "Send")
	defer span.End()

	if target.Email == "" {
		return entity.SendResult{Permanent: true, ErrorMessage: "no email address on delivery"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err := a.client.Send(ctx, mail.Message{
		To:       []string{target.Email},
		Subject:  content.Subject,
		TextBody: content.TextBody,
		HTMLBody: content.HTMLBody,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return entity.SendResult{Permanent: permanent(err), ErrorMessage: err.Error()}
	}

	return entity.SendResult{OK: true}
}

// permanent reports whether the SMTP server rejected the message for good:
// a 5xx reply means the address or message will never be accepted, anything
// else (4xx, connect errors, timeouts) is worth retrying.
func permanent(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 500 && protoErr.Code < 600
	}

	return false
}
