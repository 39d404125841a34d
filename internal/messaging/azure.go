package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/foundry/services/scheduling/config"
)

// AzureClient wraps the Service Bus connection used by the worker to
// consume upload pipeline events.
type AzureClient struct {
	client    *azservicebus.Client
	queueName string
}

// NewAzureClient creates a Service Bus client from the configured
// connection string.
func NewAzureClient(cfg config.AzureConfig) (*AzureClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, err
	}

	return &AzureClient{client: client, queueName: cfg.QueueName}, nil
}

// StartConsumer receives messages from the queue until the context is
// cancelled. Failed messages are abandoned and redelivered by the broker.
func (a *AzureClient) StartConsumer(ctx context.Context, processor MessageProcessor) error {
	log.Info().Msgf("Starting consumer for queue %s", a.queueName)

	receiver, err := a.client.NewReceiverForQueue(a.queueName, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error closing receiver")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				log.Info().Msg("No messages available, waiting...")
				time.Sleep(2 * time.Second)
				continue
			}
			return err
		}

		for _, message := range messages {
			err := processor.ProcessMessage(ctx, message)
			if err != nil {
				log.Error().Err(err).Msgf("Error processing message '%s'", message.MessageID)
				// Return the message to the queue
				if err := receiver.AbandonMessage(ctx, message, nil); err != nil {
					log.Error().Err(err).Msgf("(AbandonMessage) err: %v", err)
				}
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Msgf("(CompleteMessage) err: %v", err)
			}
		}
	}
}

// Close closes the underlying Service Bus connection.
func (a *AzureClient) Close() error {
	return a.client.Close(context.Background())
}
