package lifecycle

import (
	"context"
	"strings"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/sirupsen/logrus"
)

const causeRemoval = "vehicle no longer detected at location"

// CheckRemoval clears every warning at locationID whose plate is not among
// detectedPlates. An empty set means the zone is empty. Returns how many
// violations this call cleared.
func (s *Service) CheckRemoval(ctx context.Context, locationID string, detectedPlates []string) (int, error) {
	const op = "lifecycle.CheckRemoval"

	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return 0, apperr.Validation(op, "location is required")
	}

	seen := make(map[string]struct{}, len(detectedPlates))
	for _, p := range detectedPlates {
		seen[models.NormalizePlate(p)] = struct{}{}
	}

	warnings, err := s.Violations.ListWarningsAt(ctx, locationID)
	if err != nil {
		return 0, err
	}

	cleared := 0
	var firstErr error
	for _, v := range warnings {
		if _, present := seen[v.PlateNumber]; present {
			continue
		}
		applied, err := s.clear(ctx, v, causeRemoval)
		if err != nil {
			logrus.WithError(err).WithField("violation_id", v.ID).Error("❌ [REMOVAL] Failed to clear violation")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if applied {
			cleared++
		}
	}
	return cleared, firstErr
}
