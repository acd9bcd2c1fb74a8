package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// Worker consumes background tasks in the same process as the API.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, concurrency int, notifier MessageNotifier) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{notificationQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Printf("asynq: task %s failed (attempt %d of %d): %v", task.Type(), retried+1, maxRetry+1, err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMessageNotification, HandleMessageNotification(notifier))
	return &Worker{server: srv, mux: mux}, nil
}

// Run starts processing and blocks until ctx is cancelled, then shuts down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
