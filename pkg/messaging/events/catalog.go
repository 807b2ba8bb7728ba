package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ceramica/storefront/pkg/messaging"
	"github.com/google/uuid"
)

// ChangeKind names the mutation behind a CatalogChangedEvent.
type ChangeKind string

const (
	ProductCreated ChangeKind = "created"
	ProductUpdated ChangeKind = "updated"
	ProductDeleted ChangeKind = "deleted"
)

// CatalogChangedEvent tells every replica that its catalog snapshot is out of date.
type CatalogChangedEvent struct {
	ProductID uuid.UUID  `json:"product_id"`
	Kind      ChangeKind `json:"kind"`
	Version   int32      `json:"version"`
	ChangedAt time.Time  `json:"changed_at"`
}

func (e CatalogChangedEvent) Subject() string {
	return messaging.CatalogProductsChangedSubject
}

func (e CatalogChangedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// ParseCatalogChangedEvent decodes and checks a payload produced by CatalogChangedEvent.Payload.
func ParseCatalogChangedEvent(data []byte) (CatalogChangedEvent, error) {
	var e CatalogChangedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("failed to decode catalog event: %w", err)
	}
	if e.ProductID == uuid.Nil {
		return e, fmt.Errorf("catalog event has no product id")
	}
	switch e.Kind {
	case ProductCreated, ProductUpdated, ProductDeleted:
	default:
		return e, fmt.Errorf("catalog event has unknown kind %q", e.Kind)
	}
	return e, nil
}
