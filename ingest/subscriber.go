package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const processTimeout = 30 * time.Second

// Subscriber consumes capture results from NATS. The queue group spreads
// captures across replicas so each one is processed once.
type Subscriber struct {
	conn      *nats.Conn
	processor *Processor
	subject   string
	queue     string
	sub       *nats.Subscription
}

func NewSubscriber(conn *nats.Conn, processor *Processor, subject, queue string) *Subscriber {
	return &Subscriber{conn: conn, processor: processor, subject: subject, queue: queue}
}

func (s *Subscriber) Start() error {
	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	logrus.Infof("📥 [INGEST] Listening on %s (queue %s)", s.subject, s.queue)
	return nil
}

func (s *Subscriber) Stop() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Subscriber) handle(msg *nats.Msg) {
	var c Capture
	if err := json.Unmarshal(msg.Data, &c); err != nil {
		metrics.CapturesIngested.WithLabelValues("nats", "invalid").Inc()
		logrus.WithError(err).WithField("subject", msg.Subject).Warn("⚠️ [INGEST] Invalid capture message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	res, err := s.processor.Process(ctx, c)
	if err != nil {
		metrics.CapturesIngested.WithLabelValues("nats", "error").Inc()
		logrus.WithError(err).WithField("location_id", c.LocationID).Error("❌ [INGEST] Capture rejected")
		return
	}
	metrics.CapturesIngested.WithLabelValues("nats", "ok").Inc()
	logrus.WithFields(logrus.Fields{
		"location_id": c.LocationID,
		"detections":  res.Detections,
		"cleared":     res.Cleared,
	}).Debug("📥 [INGEST] Capture processed")
}
