package telemetry

import (
	"context"
	"fmt"

	"github.com/DmitryZaika/granite-webhooks/internal/events"
)

// Subscribe registers telemetry handlers on the event bus. Failed HTTP
// responses and failed notification deliveries become grouped $exception
// events; everything else stays off the wire.
func Subscribe(bus events.Bus, client *Client) {
	if client == nil {
		return
	}

	bus.Subscribe(events.HTTPRequestFailed{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, event events.Event) error {
			failure, ok := event.(events.HTTPRequestFailed)
			if !ok {
				return nil
			}
			value := fmt.Sprintf("status=%d %s", failure.Status, failure.Message)
			client.CaptureHTTPException(ctx, value, failure.Status, failure.Path)
			return nil
		}))

	bus.Subscribe(events.NotificationFailed{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, event events.Event) error {
			failure, ok := event.(events.NotificationFailed)
			if !ok {
				return nil
			}
			value := fmt.Sprintf("%s delivery to %s failed: %s",
				failure.Channel, failure.Recipient, failure.Reason)
			client.CaptureGeneralException(ctx, value, "NotificationFailed")
			return nil
		}))
}
