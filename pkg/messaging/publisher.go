// Package messaging defines the events exchanged between services and the
// publisher they are sent through.
package messaging

import (
	"context"
)

// CatalogProductsChangedSubject is published whenever a catalog product is created, updated or deleted.
const CatalogProductsChangedSubject = "catalog.products.changed"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards every event. It stands in when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
