// Package ingest feeds capture results from the recognition pipeline into
// the violation lifecycle
package ingest

import (
	"strings"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// Capture is one analyzed camera frame as published on captures.<locationID>
type Capture struct {
	CameraID   string          `json:"cameraId"`
	LocationID string          `json:"locationId"`
	CapturedAt time.Time       `json:"capturedAt"`
	ImagePath  *string         `json:"imagePath,omitempty"`
	Detections []DetectedPlate `json:"detections"`
}

// DetectedPlate is one object the recognizer found in the frame
type DetectedPlate struct {
	Plate      string       `json:"plate"`
	Confidence float64      `json:"confidence"`
	Class      string       `json:"class"`
	BBox       models.JSONB `json:"bbox,omitempty"`
}

func (c *Capture) validate() error {
	const op = "ingest.Capture"
	c.LocationID = strings.TrimSpace(c.LocationID)
	if c.LocationID == "" {
		return apperr.Validation(op, "locationId is required")
	}
	if strings.TrimSpace(c.CameraID) == "" {
		return apperr.Validation(op, "cameraId is required")
	}
	for i, d := range c.Detections {
		if d.Confidence < 0 || d.Confidence > 1 {
			return apperr.Validation(op, "detections[%d].confidence must be between 0 and 1", i)
		}
	}
	return nil
}

// isVehicle treats a missing class as a vehicle, which is all the
// plate recognizer reports
func (d DetectedPlate) isVehicle() bool {
	switch strings.ToLower(strings.TrimSpace(d.Class)) {
	case "", "vehicle", "car", "truck", "motorcycle", "bus", "van":
		return true
	}
	return false
}
