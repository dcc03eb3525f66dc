package workload

import (
	"context"
	"errors"

	"smfoperator/pkg/core"
)

// Handle is the controller's view of the running SMF workload. The controller may push
// artifacts and restart the workload but never owns its internal state.
type Handle interface {
	// CanConnect reports whether the workload agent is reachable.
	CanConnect(ctx context.Context) bool
	// StorageAttached reports whether the configuration mount exists.
	StorageAttached(ctx context.Context) bool
	// AppliedChecksum returns the checksum of the last configuration the workload was
	// restarted with, or "" when none was applied.
	AppliedChecksum(ctx context.Context) (string, error)
	// Push writes every rendered artifact to the workload storage.
	Push(ctx context.Context, rendered core.RenderedConfig) error
	// Restart restarts the workload so it picks up rendered and records its checksum.
	Restart(ctx context.Context, rendered core.RenderedConfig) error
	// Replan makes sure the workload runs with rendered without forcing a restart.
	Replan(ctx context.Context, rendered core.RenderedConfig) error
	// Running reports whether the smf service is up.
	Running(ctx context.Context) (bool, error)
	// RemoveTLS deletes the TLS material from the workload.
	RemoveTLS(ctx context.Context) error
}

// ErrNotReachable is returned when the workload agent cannot be contacted.
var ErrNotReachable = errors.New("workload not reachable")

// transient marks err as retryable for the controller's bounded apply retry.
func transient(err error) error {
	if err == nil {
		return nil
	}
	return &core.ClassifiedError{Err: err, Category: core.ErrorCategoryTransient}
}
