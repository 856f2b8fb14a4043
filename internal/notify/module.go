package notify

import (
	"context"

	"github.com/fundward/fundward/internal/notify/inbound"
	"github.com/fundward/fundward/internal/notify/outbound/db"
	"github.com/fundward/fundward/internal/notify/outbound/email"
	"github.com/fundward/fundward/internal/notify/outbound/push"
	"github.com/fundward/fundward/internal/notify/usecase"
	"github.com/fundward/fundward/internal/pkg/clock"
	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/goroutine"
	"github.com/fundward/fundward/internal/pkg/idempotency"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/mail"
	"github.com/fundward/fundward/internal/pkg/messaging"
	"github.com/fundward/fundward/internal/pkg/router"
	"github.com/fundward/fundward/internal/pkg/uid"
	"github.com/fundward/fundward/internal/pkg/validator"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Dependency struct {
	Ctx         context.Context
	DBConn      *pgxpool.Pool
	Messaging   messaging.Messaging
	Config      config.Config
	Instrument  instrument.Instrumentation
	UID         uid.NumberID
	UUID        uid.StringID
	Clock       clock.Clocker
	Goroutine   *goroutine.Manager
	Validator   validator.Validator
	Router      *router.Router
	Mail        mail.Mail
	Idempotency idempotency.Idempotency
}

func New(dep Dependency) error {
	dbNotify := db.NewDB(dep.DBConn, dep.Instrument)

	pushAdapter := push.New(push.Config{
		BaseURL: dep.Config.GetString("push.base_url"),
		APIKey:  dep.Config.GetString("push.api_key"),
		Timeout: dep.Config.GetSecond("push.timeout_seconds"),
	}, dep.Instrument)

	emailAdapter := email.New(dep.Mail, dep.Config.GetSecond("mail.timeout_seconds"), dep.Instrument)

	uc := usecase.NewNotify(usecase.Dependency{
		RepoDB:     dbNotify,
		Config:     dep.Config,
		UID:        dep.UID,
		UUID:       dep.UUID,
		Clock:      dep.Clock,
		Validator:  dep.Validator,
		Goroutine:  dep.Goroutine,
		Push:       pushAdapter,
		Email:      emailAdapter,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, dep.Config, dep.Idempotency, uc)
	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return nil
}
