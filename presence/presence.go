// Package presence answers "was this plate seen at this location recently?"
package presence

import (
	"context"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// Sighting is the most recent detection of a plate at a location
type Sighting struct {
	DetectionID string    `json:"detectionId"`
	ImagePath   *string   `json:"imagePath,omitempty"`
	SeenAt      time.Time `json:"seenAt"`
}

// Index looks up the latest sighting at or after `since`; nil means not seen
type Index interface {
	LastSeen(ctx context.Context, plate, locationID string, since time.Time) (*Sighting, error)
}

// Recorder is fed every persisted vehicle detection
type Recorder interface {
	Touch(ctx context.Context, d models.Detection) error
}

// DetectionReader is the slice of the detection store the index needs
type DetectionReader interface {
	LatestSighting(ctx context.Context, plate, locationID string, since time.Time) (*models.Detection, error)
}

// StoreIndex answers from the detections table via the
// (plate_number, location_id, detected_at) index
type StoreIndex struct {
	detections DetectionReader
}

func NewStoreIndex(detections DetectionReader) *StoreIndex {
	return &StoreIndex{detections: detections}
}

func (s *StoreIndex) LastSeen(ctx context.Context, plate, locationID string, since time.Time) (*Sighting, error) {
	d, err := s.detections.LatestSighting(ctx, plate, locationID, since)
	if err != nil || d == nil {
		return nil, err
	}
	return &Sighting{DetectionID: d.ID, ImagePath: d.ImagePath, SeenAt: d.DetectedAt}, nil
}

// Touch is a no-op: the detection row itself is the record
func (s *StoreIndex) Touch(ctx context.Context, d models.Detection) error {
	return nil
}
