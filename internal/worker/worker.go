// Package worker processes background jobs: when a room ends, its aggregated
// results are rendered to JSON and archived to S3.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/results"
	"github.com/classpulse/backend/pkg/queue"
	"github.com/classpulse/backend/pkg/storage"
)

// JobQueue is the job source the worker drains. Satisfied by queue.Queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ReportProcessor consumes results-report jobs: aggregate the ended room,
// render JSON, upload to S3.
type ReportProcessor struct {
	agg    *results.Aggregator
	s3     *storage.S3
	queue  JobQueue
	logger *zap.Logger
}

// NewReportProcessor creates a results-report processor.
func NewReportProcessor(agg *results.Aggregator, s3 *storage.S3, q JobQueue, logger *zap.Logger) *ReportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportProcessor{agg: agg, s3: s3, queue: q, logger: logger}
}

// report is the archived document shape.
type report struct {
	RoomCode    string              `json:"room_code"`
	GeneratedAt time.Time           `json:"generated_at"`
	Results     results.RoomResults `json:"results"`
}

// Process executes one results-report job.
func (p *ReportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeResultsReport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ResultsReportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	res, err := p.agg.GetResults(ctx, payload.RoomCode)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", payload.RoomCode, err)
	}

	body, err := json.Marshal(report{
		RoomCode:    payload.RoomCode,
		GeneratedAt: time.Now().UTC(),
		Results:     res,
	})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := storage.ReportKey(payload.RoomCode)
	url, err := p.s3.Upload(ctx, p.s3.ReportsBucket(), key, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upload report: %w", err)
	}

	p.logger.Info("results report archived",
		zap.String("room_code", payload.RoomCode),
		zap.String("s3_url", url),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.logger.Info("report worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
