package usecase

import (
	"context"
	"math"

	"github.com/golang/geo/s2"

	"github.com/civicworks/civicd/internal/domain"
)

const earthRadiusMeters = 6371008.8

// distanceTolerance collapses floating-point noise: candidates within
// this many meters of each other count as tied.
const distanceTolerance = 1e-9

// Locator finds the closest eligible worker to a coordinate by
// great-circle distance. It is a pure query over the worker
// directory; nothing is cached or indexed here.
type Locator struct {
	directory WorkerDirectory
}

func NewLocator(directory WorkerDirectory) *Locator {
	return &Locator{directory: directory}
}

// FindNearest returns the closest worker, or nil when no worker has a
// registered location. Ties break deterministically on ascending
// worker id.
func (l *Locator) FindNearest(ctx context.Context, loc domain.Location) (*domain.WorkerCandidate, error) {
	if !loc.Valid() {
		return nil, domain.ErrInvalidLocation
	}

	candidates, err := l.directory.ListWorkersWithLocation(ctx)
	if err != nil {
		return nil, err
	}

	origin := s2.LatLngFromDegrees(loc.Lat, loc.Lng)

	var best *domain.WorkerCandidate
	bestDistance := math.Inf(1)
	for i := range candidates {
		candidate := &candidates[i]
		if !candidate.Location.Valid() {
			continue
		}
		point := s2.LatLngFromDegrees(candidate.Location.Lat, candidate.Location.Lng)
		distance := origin.Distance(point).Radians() * earthRadiusMeters

		switch {
		case distance < bestDistance-distanceTolerance:
			best = candidate
			bestDistance = distance
		case math.Abs(distance-bestDistance) <= distanceTolerance && best != nil && candidate.ID < best.ID:
			best = candidate
		}
	}

	return best, nil
}
