package reconcile

import (
	"context"
	"encoding/json"

	"tickethub/pkg/task"

	"github.com/hibiken/asynq"
)

// HandleSyncState lets the worker binary run reconciliation passes enqueued
// by operators or other services.
func (r *Reconciler) HandleSyncState(ctx context.Context, t *asynq.Task) error {
	var payload task.SyncStatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	_, err := r.Run(ctx, payload.Limit, payload.Force)
	return err
}

func RegisterTaskHandlers(mux *asynq.ServeMux, r *Reconciler) {
	mux.HandleFunc(task.SyncLedgerStateTask, r.HandleSyncState)
}
