package inbound

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/goroutine"
	"github.com/fundward/fundward/internal/pkg/instrument"
	"github.com/fundward/fundward/internal/pkg/messaging"
	"github.com/fundward/fundward/internal/pkg/uid"
	"github.com/fundward/fundward/internal/shared/event"
	"github.com/sethvargo/go-retry"
)

func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Messaging,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enableConsumerNames := cfg.GetArray("modules.notify.consumer_names")

	var consumers = []struct {
		name    string
		topic   string
		handler messaging.Handler
	}{
		{
			name:    event.ProposalAwaitingVoteConsumerNotify,
			topic:   event.ProposalAwaitingVoteDestination,
			handler: mqHandler.ProposalAwaitingVote,
		},
		{
			name:    event.ProposalDecidedConsumerNotify,
			topic:   event.ProposalDecidedDestination,
			handler: mqHandler.ProposalDecided,
		},
		{
			name:    event.PolicyUpdatedConsumerNotify,
			topic:   event.PolicyUpdatedDestination,
			handler: mqHandler.PolicyUpdated,
		},
		{
			name:    event.GrantMarkedSentConsumerNotify,
			topic:   event.GrantMarkedSentDestination,
			handler: mqHandler.GrantMarkedSent,
		},
	}

	for _, consumer := range consumers {
		if len(enableConsumerNames) > 0 && slices.Contains(enableConsumerNames, consumer.name) {
			routine.Go(ctx, func(pCtx context.Context) error {
				slog.InfoContext(ctx, "Running job for handling consumer", "consumer", consumer.name)

				// Reconnect with capped backoff: a broker restart must not
				// permanently kill the consumer goroutine.
				backoff := retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(200*time.Millisecond))
				return retry.Do(pCtx, backoff, func(rCtx context.Context) error {
					err := messenger.Consume(rCtx,
						consumer.topic,
						consumer.handler,
						messaging.WithQueueGroup(consumer.name),
						messaging.WithAutoAck(true),
						messaging.WithConcurrency(10),
						messaging.WithMaxInFlight(10),
					)
					if err != nil && rCtx.Err() == nil {
						slog.ErrorContext(rCtx, "consumer stopped, reconnecting", "consumer", consumer.name, "error", err)
						return retry.RetryableError(err)
					}
					return err
				})
			})
		}
	}
}
