// Package frames ranks popular frames around a FID.
package frames

import (
	"context"

	"fidchannels/backend"
	"fidchannels/internal/utils"
)

// DefaultNeighbours is how many engaged FIDs are used to rank frames.
const DefaultNeighbours = 20

// Service looks up the engagement neighbourhood of a FID and ranks the frames
// those FIDs interact with.
type Service struct {
	source     backend.FrameSource
	neighbours int
}

// New creates a Service. neighbours <= 0 uses DefaultNeighbours.
func New(source backend.FrameSource, neighbours int) *Service {
	if neighbours <= 0 {
		neighbours = DefaultNeighbours
	}
	return &Service{source: source, neighbours: neighbours}
}

// Popular returns the frames ranked for the most engaged neighbours of fid.
// No neighbours is backend.ErrNotFound.
func (s *Service) Popular(ctx context.Context, fid backend.FID) ([]backend.Frame, error) {
	if fid == 0 {
		return nil, backend.ErrMissingKey
	}

	engaged, err := s.source.EngagedFIDs(ctx, fid)
	if err != nil {
		return nil, err
	}
	if len(engaged) == 0 {
		return nil, backend.ErrNotFound
	}
	if len(engaged) > s.neighbours {
		engaged = engaged[:s.neighbours]
	}
	utils.Debugf("ranking frames for fid %s over %d engaged fids", fid, len(engaged))

	frames, err := s.source.FrameRankings(ctx, engaged)
	if err != nil {
		return nil, err
	}
	if frames == nil {
		frames = []backend.Frame{}
	}
	return frames, nil
}
