// Package errors provides custom error types for catalog-related operations.
package errors

import "errors"

var ErrProductNotFound = errors.New("product not found")

// ErrSnapshotUnavailable is returned when the catalog cannot be loaded and no earlier snapshot exists.
var ErrSnapshotUnavailable = errors.New("catalog snapshot unavailable")
