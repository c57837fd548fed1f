package revocation

import (
	"context"

	"tickethub/pkg/task"

	"github.com/hibiken/asynq"
)

// HandleProcessQueue is the asynq handler behind the scheduler tick. The
// payload batch size is informational, the worker already carries its
// configured batch size.
func (w *Worker) HandleProcessQueue(ctx context.Context, t *asynq.Task) error {
	_, err := w.ProcessBatch(ctx)
	return err
}

func RegisterTaskHandlers(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(task.ProcessRevocationQueueTask, w.HandleProcessQueue)
}
