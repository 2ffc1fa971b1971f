// Package source defines the contract of the progress source of truth.
package source

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mrlokans/shelfsync/internal/entities"
)

// ErrUnavailable indicates the source server could not be reached or rejected our token.
var ErrUnavailable = errors.New("progress source unavailable")

// Source yields listening progress for books currently being consumed.
type Source interface {
	// ListInProgress returns in-progress records listened to for at least minListenSeconds.
	ListInProgress(ctx context.Context, minListenSeconds float64) ([]entities.ProgressRecord, error)
	GetItem(ctx context.Context, id string) (json.RawMessage, error)
	TestConnection(ctx context.Context) error
}
