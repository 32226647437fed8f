// Package repair queues targeted recounts of single entities whose derived
// counters may have drifted, and works them off a JetStream stream.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/metrics"
)

const (
	StreamName       = "REPAIR_JOBS"
	SubjectRequested = "repair.catalog.requested"
	SubjectDLQ       = "repair.catalog.dlq"
	durable          = "catalog_repair"
)

type Job struct {
	Kind        consistency.Kind `json:"kind"`
	ID          string           `json:"id"`
	RequestedAt time.Time        `json:"requested_at"`
}

// EnsureStream creates the repair stream, or widens its subjects.
func EnsureStream(js nats.JetStreamContext) error {
	info, err := js.StreamInfo(StreamName)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == "repair.>" {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{"repair.>"}
		_, err := js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"repair.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

// Queue publishes repair jobs. It implements consistency.Repairs.
type Queue struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

func NewQueue(js nats.JetStreamContext, log *zap.Logger) *Queue {
	return &Queue{js: js, log: logging.OrNop(log).Named("repair_queue")}
}

func (q *Queue) RequestRepair(_ context.Context, kind consistency.Kind, id string) {
	data, err := json.Marshal(Job{Kind: kind, ID: id, RequestedAt: time.Now().UTC()})
	if err != nil {
		q.log.Warn("marshal repair job failed", zap.Error(err))
		return
	}
	if _, err := q.js.PublishAsync(SubjectRequested, data); err != nil {
		metrics.RepairJobs.WithLabelValues("publish_failed").Inc()
		q.log.Warn("repair job not queued, left for the sweep",
			zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		return
	}
	metrics.RepairJobs.WithLabelValues("queued").Inc()
}

// Repairer recounts one entity.
type Repairer interface {
	Repair(ctx context.Context, kind consistency.Kind, id string) (int, error)
}

// Inline runs repairs in the background of the current process. It serves
// deployments without NATS.
type Inline struct {
	repairer Repairer
	log      *zap.Logger
}

func NewInline(r Repairer, log *zap.Logger) *Inline {
	return &Inline{repairer: r, log: logging.OrNop(log).Named("repair")}
}

// SetRepairer completes construction when the repairer itself depends on the
// Repairs this value provides.
func (in *Inline) SetRepairer(r Repairer) { in.repairer = r }

func (in *Inline) RequestRepair(ctx context.Context, kind consistency.Kind, id string) {
	if in.repairer == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		n, err := in.repairer.Repair(ctx, kind, id)
		if err != nil {
			metrics.RepairJobs.WithLabelValues("failed").Inc()
			in.log.Warn("inline repair failed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
			return
		}
		metrics.RepairJobs.WithLabelValues("done").Inc()
		in.log.Debug("inline repair done", zap.String("kind", string(kind)), zap.String("id", id), zap.Int("corrections", n))
	}()
}
