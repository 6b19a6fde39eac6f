// Package retention purges old empty-scene detections and their images
package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/sirupsen/logrus"
)

// DetectionStore is the slice of the detection repository the cleaner needs
type DetectionStore interface {
	ListEmptyOlderThan(ctx context.Context, cutoff time.Time, after models.Cursor, limit int) ([]models.Detection, error)
	IsReferenced(ctx context.Context, detectionID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// ImageStore removes stored capture images. Removing a missing image is not an error.
type ImageStore interface {
	Remove(path string) error
}

// FileStore deletes images below the upload directory
type FileStore struct {
	Root string
}

func (f FileStore) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	full := path
	switch {
	case strings.HasPrefix(path, "/uploads/"):
		full = filepath.Join(f.Root, strings.TrimPrefix(path, "/uploads/"))
	case !filepath.IsAbs(path):
		full = filepath.Join(f.Root, path)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Report summarises one purge pass
type Report struct {
	Scanned int
	Deleted int
	Kept    int
	Failed  int
	// Complete is set when the pass reached the last candidate; the next
	// pass starts over from the oldest row
	Complete bool
}

type Cleaner struct {
	detections DetectionStore
	images     ImageStore
	window     time.Duration
	batch      int
	now        func() time.Time

	mu     sync.Mutex
	cursor models.Cursor
}

func NewCleaner(detections DetectionStore, images ImageStore, window time.Duration, batch int) *Cleaner {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if batch <= 0 {
		batch = 500
	}
	return &Cleaner{detections: detections, images: images, window: window, batch: batch, now: time.Now}
}

// RunOnce adapts Purge to scheduler.Func
func (c *Cleaner) RunOnce(ctx context.Context) error {
	report, err := c.Purge(ctx)
	if err != nil {
		return err
	}
	if report.Scanned > 0 {
		logrus.Infof("🧹 [RETENTION] Purge: %d scanned, %d deleted, %d kept, %d failed",
			report.Scanned, report.Deleted, report.Kept, report.Failed)
	}
	return nil
}

// Purge deletes one batch of empty-scene detections older than the window.
// Rows still referenced by an open incident or an unread alert are kept.
// The image goes first so a failed row delete never leaves an orphaned file.
func (c *Cleaner) Purge(ctx context.Context) (Report, error) {
	var report Report

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.detections.ListEmptyOlderThan(ctx, c.now().Add(-c.window), c.cursor, c.batch)
	if err != nil {
		return report, err
	}
	next := models.Cursor{}
	if len(rows) == c.batch {
		last := rows[len(rows)-1]
		next = models.Cursor{At: last.DetectedAt, ID: last.ID}
	}

	for _, d := range rows {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		entry := logrus.WithField("detection_id", d.ID)

		referenced, err := c.detections.IsReferenced(ctx, d.ID)
		if err != nil {
			entry.WithError(err).Error("❌ [RETENTION] Reference check failed")
			report.Failed++
			continue
		}
		if referenced {
			report.Kept++
			continue
		}

		if d.ImagePath != nil {
			if err := c.images.Remove(*d.ImagePath); err != nil {
				entry.WithError(err).Error("❌ [RETENTION] Failed to remove image")
				report.Failed++
				continue
			}
		}
		if err := c.detections.Delete(ctx, d.ID); err != nil {
			entry.WithError(err).Error("❌ [RETENTION] Failed to delete detection")
			report.Failed++
			continue
		}
		report.Deleted++
		metrics.DetectionsPurged.Inc()
	}

	c.cursor = next
	report.Complete = next.IsZero()
	return report, nil
}
