package ingest

import (
	"context"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/lifecycle"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/presence"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DetectionWriter persists the detection rows of a capture
type DetectionWriter interface {
	Create(ctx context.Context, detections []models.Detection) error
}

// Lifecycle is the part of lifecycle.Service the processor drives
type Lifecycle interface {
	RecordDetection(ctx context.Context, plate, locationID string, ref lifecycle.DetectionRef) (*lifecycle.Outcome, error)
	CheckRemoval(ctx context.Context, locationID string, detectedPlates []string) (int, error)
}

// Result summarises what one capture did
type Result struct {
	Detections int                  `json:"detections"`
	Outcomes   []*lifecycle.Outcome `json:"outcomes"`
	Cleared    int                  `json:"cleared"`
	Errors     []string             `json:"errors,omitempty"`
}

type Processor struct {
	detections    DetectionWriter
	presence      presence.Recorder
	lifecycle     Lifecycle
	minConfidence float64
	now           func() time.Time
}

func NewProcessor(detections DetectionWriter, recorder presence.Recorder, lc Lifecycle, minConfidence float64) *Processor {
	return &Processor{
		detections:    detections,
		presence:      recorder,
		lifecycle:     lc,
		minConfidence: minConfidence,
		now:           time.Now,
	}
}

// Process persists the capture's detections, records a detection for every
// vehicle that passed the confidence threshold and then runs the removal
// check for the location. Vehicles below the threshold are dropped. A
// capture with no vehicle is stored as one empty-scene row.
func (p *Processor) Process(ctx context.Context, c Capture) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = p.now()
	}

	rows, plates, unreadable := p.rows(c)
	if err := p.detections.Create(ctx, rows); err != nil {
		return nil, err
	}

	entry := logrus.WithFields(logrus.Fields{"camera_id": c.CameraID, "location_id": c.LocationID})
	res := &Result{Detections: len(rows)}

	for _, d := range rows {
		if d.ObjectClass != models.ObjectVehicle {
			continue
		}
		if err := p.presence.Touch(ctx, d); err != nil {
			entry.WithError(err).Warn("⚠️ [INGEST] Presence update failed")
		}

		id := d.ID
		out, err := p.lifecycle.RecordDetection(ctx, d.PlateNumber, c.LocationID, lifecycle.DetectionRef{
			DetectionID: &id,
			CameraID:    c.CameraID,
			ImagePath:   d.ImagePath,
			DetectedAt:  d.DetectedAt,
			Confidence:  d.Confidence,
		})
		if err != nil {
			entry.WithError(err).WithField("plate", d.PlateNumber).Error("❌ [INGEST] Failed to record detection")
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	// A vehicle whose plate could not be read might be one we already
	// warned, so the zone is only checked when every vehicle was identified
	if unreadable {
		entry.Debug("👁️  [INGEST] Unreadable vehicle in frame, removal check skipped")
		return res, nil
	}

	cleared, err := p.lifecycle.CheckRemoval(ctx, c.LocationID, plates)
	res.Cleared = cleared
	if err != nil {
		entry.WithError(err).Error("❌ [INGEST] Removal check failed")
		res.Errors = append(res.Errors, err.Error())
	}
	return res, nil
}

func (p *Processor) rows(c Capture) (rows []models.Detection, plates []string, unreadable bool) {
	for _, d := range c.Detections {
		if !d.isVehicle() {
			continue
		}
		plate := models.NormalizePlate(d.Plate)
		if models.IsSentinelPlate(plate) {
			unreadable = true
		} else {
			plates = append(plates, plate)
		}
		// Too weak to record, but the vehicle is still in the zone
		if d.Confidence < p.minConfidence {
			continue
		}
		rows = append(rows, models.Detection{
			ID:          uuid.New().String(),
			CameraID:    c.CameraID,
			LocationID:  c.LocationID,
			PlateNumber: plate,
			ObjectClass: models.ObjectVehicle,
			Confidence:  d.Confidence,
			DetectedAt:  c.CapturedAt,
			ImagePath:   c.ImagePath,
			BBox:        d.BBox,
		})
	}

	if len(rows) == 0 {
		rows = append(rows, models.Detection{
			ID:          uuid.New().String(),
			CameraID:    c.CameraID,
			LocationID:  c.LocationID,
			PlateNumber: models.PlateAbsent,
			ObjectClass: models.ObjectNone,
			DetectedAt:  c.CapturedAt,
			ImagePath:   c.ImagePath,
		})
	}
	return rows, plates, unreadable
}
