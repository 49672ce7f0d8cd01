package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"unitysales/backend/internal/domain"
)

const (
	QueueDefault = "default"

	TaskInventoryExpiryScan = "inventory:expiry_scan"
)

type ExpiryScanPayload struct {
	Trigger string `json:"trigger"`
}

func NewExpiryScanTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(ExpiryScanPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryExpiryScan, data, asynq.Queue(QueueDefault)), nil
}

type ExpiryScanner interface {
	ScanExpiryRisk(ctx context.Context) (*domain.ExpiryScanResult, error)
}

// ExpiryScanJob classifies every stocked batch and logs the ones at risk.
type ExpiryScanJob struct {
	scanner ExpiryScanner
	logger  *slog.Logger
}

func NewExpiryScanJob(scanner ExpiryScanner, logger *slog.Logger) *ExpiryScanJob {
	return &ExpiryScanJob{scanner: scanner, logger: logger}
}

func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.scanner == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload ExpiryScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	logger := j.logger.With(slog.String("task", TaskInventoryExpiryScan), slog.String("trigger", payload.Trigger))
	start := time.Now()
	result, err := j.scanner.ScanExpiryRisk(ctx)
	if err != nil {
		logger.Error("expiry scan failed", slog.Any("error", err))
		return err
	}

	for _, b := range result.AtRisk {
		logger.Warn("batch at risk",
			slog.String("batch_id", b.ID),
			slog.String("batch_number", b.BatchNumber),
			slog.String("product", b.ProductName),
			slog.String("risk", b.Risk),
			slog.Int("stock", b.Stock),
		)
	}
	logger.Info("expiry scan finished",
		slog.Int("at_risk", len(result.AtRisk)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// Worker wraps the asynq server and its scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	if w.logger != nil {
		w.logger.Info("job worker started")
	}

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}
