package ride

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func point(lat, lng float64) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: lat, Y: lng}, Valid: true}
}

func TestDistanceKm(t *testing.T) {
	spire := point(53.3498, -6.2603)
	heuston := point(53.3464, -6.2927)

	assert.InDelta(t, 0, distanceKm(spire, spire), 1e-9)
	assert.InDelta(t, 2.18, distanceKm(spire, heuston), 0.02)
	assert.InDelta(t, distanceKm(spire, heuston), distanceKm(heuston, spire), 1e-9)

	// A quarter of the equator.
	assert.InDelta(t, 10007.5, distanceKm(point(0, 0), point(0, 90)), 1)
}
