// Package events exports violation lifecycle changes and authority alerts to
// the message brokers. Publishing is best effort: failures are logged by the
// caller and never undo the change being announced.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Event types
const (
	ViolationCreated   = "violation.created"
	ViolationExtended  = "violation.extended"
	ViolationCleared   = "violation.cleared"
	ViolationPending   = "violation.pending"
	ViolationIssued    = "violation.issued"
	ViolationResolved  = "violation.resolved"
	ViolationCancelled = "violation.cancelled"
	AlertRaised        = "alert.raised"
)

// Event is the envelope sent to every sink
type Event struct {
	Type        string      `json:"type"`
	ViolationID string      `json:"violationId,omitempty"`
	PlateNumber string      `json:"plateNumber"`
	LocationID  string      `json:"locationId"`
	Status      string      `json:"status,omitempty"`
	At          time.Time   `json:"at"`
	Data        interface{} `json:"data,omitempty"`
}

// Subject is the NATS subject for the event: violations.<event> or alerts.<alert type>
func (e Event) Subject() string {
	if e.Type == AlertRaised {
		if t, ok := alertType(e.Data); ok {
			return "alerts." + t
		}
		return "alerts.unknown"
	}
	return "violations." + strings.TrimPrefix(e.Type, "violation.")
}

// Key groups events of one vehicle at one location on the same partition
func (e Event) Key() string {
	return e.PlateNumber + "|" + e.LocationID
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }
func (Nop) Close() error                               { return nil }

// Multi fans an event out to every publisher. All sinks are attempted;
// the first error is returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			logrus.WithError(err).WithField("event", e.Type).Warn("⚠️ [EVENTS] Publish failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AlertTyper is implemented by alert payloads so Subject can route them
type AlertTyper interface {
	AlertTypeName() string
}

func alertType(data interface{}) (string, bool) {
	if t, ok := data.(AlertTyper); ok {
		return t.AlertTypeName(), true
	}
	return "", false
}
