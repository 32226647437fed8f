package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/metrics"
)

type Worker struct {
	Log      *zap.Logger
	JS       nats.JetStreamContext
	Repairer Repairer

	MaxDeliver int
}

func NewWorker(log *zap.Logger, js nats.JetStreamContext, r Repairer) *Worker {
	return &Worker{Log: logging.OrNop(log).Named("repair_worker"), JS: js, Repairer: r, MaxDeliver: 5}
}

func (w *Worker) Run(ctx context.Context) error {
	if err := EnsureStream(w.JS); err != nil {
		return err
	}
	sub, err := w.JS.PullSubscribe(SubjectRequested, durable)
	if err != nil {
		return err
	}
	w.Log.Info("consumer started", zap.String("subject", SubjectRequested))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		for _, m := range msgs {
			w.handleMsg(ctx, m)
		}
	}
}

type verdict int

const (
	ack verdict = iota
	retry
	deadLetter
)

// decide runs one delivery of a job and says what to do with the message.
func (w *Worker) decide(ctx context.Context, data []byte, numDelivered uint64) (verdict, string) {
	if w.MaxDeliver > 0 && int(numDelivered) > w.MaxDeliver {
		return deadLetter, fmt.Sprintf("max deliveries exceeded: %d", numDelivered)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		w.Log.Warn("bad payload", zap.Error(err))
		return ack, ""
	}
	if !j.Kind.Valid() || j.ID == "" {
		w.Log.Warn("bad repair job", zap.String("kind", string(j.Kind)), zap.String("id", j.ID))
		return ack, ""
	}
	n, err := w.Repairer.Repair(ctx, j.Kind, j.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ack, ""
	case err != nil:
		w.Log.Warn("repair failed", zap.String("kind", string(j.Kind)), zap.String("id", j.ID),
			zap.Uint64("attempt", numDelivered), zap.Error(err))
		return retry, err.Error()
	}
	if n > 0 {
		w.Log.Info("repair corrected counters", zap.String("kind", string(j.Kind)), zap.String("id", j.ID), zap.Int("corrections", n))
	}
	return ack, ""
}

func (w *Worker) handleMsg(ctx context.Context, m *nats.Msg) {
	md, _ := m.Metadata()
	numDelivered := uint64(1)
	if md != nil {
		numDelivered = md.NumDelivered
	}
	switch v, reason := w.decide(ctx, m.Data, numDelivered); v {
	case deadLetter:
		metrics.RepairJobs.WithLabelValues("dead_lettered").Inc()
		if err := w.publishDLQ(m.Data, reason); err != nil {
			w.Log.Warn("dlq publish failed", zap.Error(err))
		}
		_ = m.Ack()
	case retry:
		metrics.RepairJobs.WithLabelValues("retried").Inc()
		_ = m.NakWithDelay(backoffDelay(numDelivered))
	default:
		metrics.RepairJobs.WithLabelValues("done").Inc()
		_ = m.Ack()
	}
}

func (w *Worker) publishDLQ(data []byte, reason string) error {
	msg := map[string]any{"subject": SubjectRequested, "reason": reason, "payload": json.RawMessage(data)}
	b, _ := json.Marshal(msg)
	_, err := w.JS.Publish(SubjectDLQ, b)
	return err
}

var _ consistency.Repairs = (*Queue)(nil)
var _ consistency.Repairs = (*Inline)(nil)
