package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/models"
)

// stepDegrees is how far a simulated bus moves per tick.
const stepDegrees = 0.0005

// StartSimulator moves every active bus one step along its heading each
// interval and passes the new position to publish. It stops with ctx.
func StartSimulator(
	ctx context.Context,
	fleet *FleetService,
	interval time.Duration,
	publish func(models.BusLocation),
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				moved := fleet.Step()
				for _, l := range moved {
					publish(l)
				}
				log.Debug("simulated bus positions", zap.Int("buses", len(moved)))
			}
		}
	}()
}

// Step advances every active bus once and returns the new positions.
func (s *FleetService) Step() []models.BusLocation {
	now := s.now().UTC().Format(time.RFC3339)
	active := s.repo.ActiveLocations()
	for i := range active {
		l := &active[i]
		rad := l.Heading * math.Pi / 180
		l.CurrentLocation.Latitude += stepDegrees * math.Cos(rad)
		l.CurrentLocation.Longitude += stepDegrees * math.Sin(rad)
		// turn a little so buses loop instead of leaving the map
		l.Heading = math.Mod(l.Heading+15, 360)
		l.LastUpdate = now
		s.repo.PutLocation(*l)
	}
	return active
}
