package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/lifecycle"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDetections struct {
	rows []models.Detection
	err  error
}

func (m *memDetections) Create(ctx context.Context, d []models.Detection) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, d...)
	return nil
}

type memRecorder struct {
	touched []string
}

func (m *memRecorder) Touch(ctx context.Context, d models.Detection) error {
	m.touched = append(m.touched, d.PlateNumber)
	return nil
}

type removalCall struct {
	location string
	plates   []string
}

type fakeLifecycle struct {
	recorded []string
	refs     []lifecycle.DetectionRef
	removals []removalCall
	failOn   string
}

func (f *fakeLifecycle) RecordDetection(ctx context.Context, plate, locationID string, ref lifecycle.DetectionRef) (*lifecycle.Outcome, error) {
	if plate == f.failOn {
		return nil, errors.New("boom")
	}
	f.recorded = append(f.recorded, plate)
	f.refs = append(f.refs, ref)
	return &lifecycle.Outcome{Created: true}, nil
}

func (f *fakeLifecycle) CheckRemoval(ctx context.Context, locationID string, plates []string) (int, error) {
	f.removals = append(f.removals, removalCall{location: locationID, plates: plates})
	return 0, nil
}

func newTestProcessor() (*Processor, *memDetections, *memRecorder, *fakeLifecycle) {
	det := &memDetections{}
	rec := &memRecorder{}
	lc := &fakeLifecycle{}
	return NewProcessor(det, rec, lc, 0.5), det, rec, lc
}

func TestProcessVehicles(t *testing.T) {
	p, det, rec, lc := newTestProcessor()
	img := "/uploads/2026/05/04/frame.jpg"
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	res, err := p.Process(context.Background(), Capture{
		CameraID:   "cam-1",
		LocationID: "ZONE-A",
		CapturedAt: at,
		ImagePath:  &img,
		Detections: []DetectedPlate{
			{Plate: "abc 123", Confidence: 0.92, Class: "car"},
			{Plate: "XYZ789", Confidence: 0.31, Class: "car"},
			{Plate: "", Confidence: 0.99, Class: "person"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Detections)
	require.Len(t, det.rows, 1)
	assert.Equal(t, "ABC123", det.rows[0].PlateNumber)
	assert.Equal(t, models.ObjectVehicle, det.rows[0].ObjectClass)
	assert.Equal(t, []string{"ABC123"}, rec.touched)

	assert.Equal(t, []string{"ABC123"}, lc.recorded)
	assert.Equal(t, det.rows[0].ID, *lc.refs[0].DetectionID)
	assert.Equal(t, at, lc.refs[0].DetectedAt)

	require.Len(t, lc.removals, 1)
	// The weak reading is not recorded but still keeps its plate in the zone
	assert.Equal(t, removalCall{location: "ZONE-A", plates: []string{"ABC123", "XYZ789"}}, lc.removals[0])
}

func TestProcessLowConfidenceVehicleIsNotTreatedAsGone(t *testing.T) {
	tests := []struct {
		name        string
		plate       string
		wantRemoval []removalCall
	}{
		{name: "readable plate", plate: "ABC123", wantRemoval: []removalCall{{location: "ZONE-A", plates: []string{"ABC123"}}}},
		{name: "unreadable plate", plate: "unreadable", wantRemoval: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, _, lc := newTestProcessor()
			_, err := p.Process(context.Background(), Capture{
				CameraID:   "cam-1",
				LocationID: "ZONE-A",
				Detections: []DetectedPlate{{Plate: tt.plate, Confidence: 0.45, Class: "car"}},
			})
			require.NoError(t, err)
			assert.Empty(t, lc.recorded)
			assert.Equal(t, tt.wantRemoval, lc.removals)
		})
	}
}

func TestProcessEmptyScene(t *testing.T) {
	p, det, rec, lc := newTestProcessor()

	res, err := p.Process(context.Background(), Capture{CameraID: "cam-1", LocationID: "ZONE-A"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Detections)
	assert.Equal(t, models.ObjectNone, det.rows[0].ObjectClass)
	assert.Empty(t, rec.touched)
	assert.Empty(t, lc.recorded)
	require.Len(t, lc.removals, 1)
	assert.Empty(t, lc.removals[0].plates)
}

func TestProcessUnreadableSkipsRemoval(t *testing.T) {
	p, _, _, lc := newTestProcessor()

	_, err := p.Process(context.Background(), Capture{
		CameraID:   "cam-1",
		LocationID: "ZONE-A",
		Detections: []DetectedPlate{{Plate: "unreadable", Confidence: 0.8}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{models.PlateUnreadable}, lc.recorded)
	assert.Empty(t, lc.removals)
}

func TestProcessKeepsGoingAfterRecordFailure(t *testing.T) {
	p, _, _, lc := newTestProcessor()
	lc.failOn = "AAA111"

	res, err := p.Process(context.Background(), Capture{
		CameraID:   "cam-1",
		LocationID: "ZONE-A",
		Detections: []DetectedPlate{{Plate: "AAA111", Confidence: 0.9}, {Plate: "BBB222", Confidence: 0.9}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, []string{"BBB222"}, lc.recorded)
	require.Len(t, lc.removals, 1)
	assert.ElementsMatch(t, []string{"AAA111", "BBB222"}, lc.removals[0].plates)
}

func TestProcessValidation(t *testing.T) {
	tests := []struct {
		name    string
		capture Capture
	}{
		{name: "no location", capture: Capture{CameraID: "cam-1"}},
		{name: "no camera", capture: Capture{LocationID: "ZONE-A"}},
		{name: "bad confidence", capture: Capture{CameraID: "cam-1", LocationID: "ZONE-A", Detections: []DetectedPlate{{Plate: "A1", Confidence: 1.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, det, _, _ := newTestProcessor()
			_, err := p.Process(context.Background(), tt.capture)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Empty(t, det.rows)
		})
	}
}

func TestProcessStopsWhenDetectionsCannotBeStored(t *testing.T) {
	p, det, _, lc := newTestProcessor()
	det.err = apperr.Errorf(apperr.KindPersistence, "test", "db down")

	_, err := p.Process(context.Background(), Capture{CameraID: "cam-1", LocationID: "ZONE-A"})
	assert.True(t, apperr.IsKind(err, apperr.KindPersistence))
	assert.Empty(t, lc.removals)
}

func TestSubscriberHandlesMessages(t *testing.T) {
	p, det, _, lc := newTestProcessor()
	s := NewSubscriber(nil, p, "captures.>", "parking-core")

	s.handle(&nats.Msg{Subject: "captures.ZONE-A", Data: []byte("{not json")})
	assert.Empty(t, det.rows)

	s.handle(&nats.Msg{
		Subject: "captures.ZONE-A",
		Data:    []byte(`{"cameraId":"cam-1","locationId":"ZONE-A","detections":[{"plate":"ABC123","confidence":0.9,"class":"car"}]}`),
	})
	assert.Equal(t, []string{"ABC123"}, lc.recorded)
}
