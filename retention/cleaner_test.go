package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDetections struct {
	rows       []models.Detection
	referenced map[string]bool
	deleted    []string
	deleteErr  error
}

// rows are kept in (DetectedAt, ID) order by the tests
func (m *memDetections) ListEmptyOlderThan(ctx context.Context, cutoff time.Time, after models.Cursor, limit int) ([]models.Detection, error) {
	var out []models.Detection
	for _, d := range m.rows {
		if d.ObjectClass == models.ObjectNone && d.DetectedAt.Before(cutoff) && after.Before(d.DetectedAt, d.ID) && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDetections) IsReferenced(ctx context.Context, id string) (bool, error) {
	return m.referenced[id], nil
}

func (m *memDetections) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	for i, d := range m.rows {
		if d.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			break
		}
	}
	return nil
}

type recordingImages struct {
	removed []string
}

func (r *recordingImages) Remove(path string) error {
	r.removed = append(r.removed, path)
	return nil
}

func strPtr(s string) *string { return &s }

func TestPurge(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	store := &memDetections{
		rows: []models.Detection{
			{ID: "old-empty", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-48 * time.Hour), ImagePath: strPtr("/uploads/a.jpg")},
			{ID: "old-referenced", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-30 * time.Hour), ImagePath: strPtr("/uploads/b.jpg")},
			{ID: "recent-empty", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-2 * time.Hour)},
			{ID: "old-vehicle", ObjectClass: models.ObjectVehicle, DetectedAt: now.Add(-72 * time.Hour)},
		},
		referenced: map[string]bool{"old-referenced": true},
	}
	images := &recordingImages{}
	c := NewCleaner(store, images, 24*time.Hour, 10)
	c.now = func() time.Time { return now }

	report, err := c.Purge(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Scanned: 2, Deleted: 1, Kept: 1, Complete: true}, report)
	assert.Equal(t, []string{"old-empty"}, store.deleted)
	assert.Equal(t, []string{"/uploads/a.jpg"}, images.removed)
}

func TestPurgeMovesPastReferencedRows(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	store := &memDetections{
		rows: []models.Detection{
			{ID: "a", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-72 * time.Hour)},
			{ID: "b", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-71 * time.Hour)},
			{ID: "c", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-70 * time.Hour)},
		},
		referenced: map[string]bool{"a": true, "b": true},
	}
	c := NewCleaner(store, &recordingImages{}, 24*time.Hour, 2)
	c.now = func() time.Time { return now }

	first, err := c.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Kept: 2}, first)

	second, err := c.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Deleted: 1, Complete: true}, second)
	assert.Equal(t, []string{"c"}, store.deleted)

	// Wrapped around to the oldest rows again
	third, err := c.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Kept: 2}, third)
}

func TestPurgeCountsFailedDeletes(t *testing.T) {
	now := time.Now()
	store := &memDetections{
		rows:      []models.Detection{{ID: "d1", ObjectClass: models.ObjectNone, DetectedAt: now.Add(-25 * time.Hour)}},
		deleteErr: errors.New("db down"),
	}
	c := NewCleaner(store, &recordingImages{}, 24*time.Hour, 10)

	report, err := c.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Deleted)
}

func TestFileStoreToleratesMissingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "frame.jpg"), []byte("jpeg"), 0o644))
	fs := FileStore{Root: root}

	require.NoError(t, fs.Remove("/uploads/frame.jpg"))
	_, err := os.Stat(filepath.Join(root, "frame.jpg"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, fs.Remove("/uploads/frame.jpg"))
	assert.NoError(t, fs.Remove(""))
}
