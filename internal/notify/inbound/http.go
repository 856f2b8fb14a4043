package inbound

import (
	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/idempotency"
	"github.com/fundward/fundward/internal/pkg/router"
)

func RegisterHTTPEndpoint(r *router.Router, cfg config.Config, idemp idempotency.Idempotency, uc uc) {
	end := &HTTPEndpoint{uc: uc, cfg: cfg, idemp: idemp}

	r.GET("/api/v1/notify/preferences", end.GetPreferences)
	r.PUT("/api/v1/notify/preferences", end.UpdatePreferences)

	r.POST("/api/v1/notify/subscriptions", end.RegisterSubscription)
	r.DELETE("/api/v1/notify/subscriptions", end.RemoveSubscription)

	r.GET("/api/v1/notify/events/:id", end.GetEventStatus)

	// Cron-facing triggers, authenticated by shared token instead of JWT.
	r.POST("/api/v1/notify/deliveries/process", end.ProcessDeliveries)
	r.POST("/api/v1/notify/jobs/weekly-reminder", end.RunWeeklyReminder)
	r.POST("/api/v1/notify/jobs/daily-digest", end.RunDailyDigest)
}
