package analytic

import (
	"context"

	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/natsclient"
)

// Callback receives a Data record, either from a channel subscription or
// from a direct output connection of an upstream analytic.
type Callback func(context.Context, *data.Data)

// Subscription is a handle to an active channel subscription
type Subscription interface {
	Unsubscribe() error
}

// Bus is the sole wire-level contract the framework depends on: publish
// a record to a named channel, subscribe to a named channel for async
// record delivery.
type Bus interface {
	Publish(ctx context.Context, channel string, rec *data.Data) error
	Subscribe(ctx context.Context, channel string, handler func(context.Context, *data.Data)) (Subscription, error)
}

// NATSBus adapts a natsclient.Client to the Bus interface
type NATSBus struct {
	Client *natsclient.Client
}

// Publish sends a record to the named channel
func (b NATSBus) Publish(ctx context.Context, channel string, rec *data.Data) error {
	return b.Client.Publish(ctx, channel, rec)
}

// Subscribe registers a record handler on the named channel
func (b NATSBus) Subscribe(
	ctx context.Context, channel string, handler func(context.Context, *data.Data),
) (Subscription, error) {
	return b.Client.Subscribe(ctx, channel, handler)
}
