package app

import (
	"log/slog"
	"os"

	"github.com/fundward/fundward/internal/notify"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.notify.enabled") {
		if err := notify.New(notify.Dependency{
			Ctx:         a.ctx,
			DBConn:      a.dbConn,
			Messaging:   a.messaging,
			Config:      a.config,
			Instrument:  a.ins,
			UID:         a.uid,
			UUID:        a.uuid,
			Clock:       a.clock,
			Goroutine:   a.goroutine,
			Validator:   a.validator,
			Router:      a.router,
			Mail:        a.mail,
			Idempotency: a.idemp,
		}); err != nil {
			slog.Error("failed to init module notify", "error", err)
			os.Exit(1)
		}
	}
}
