package ride

import (
	"math"

	"github.com/jackc/pgx/v5/pgtype"
)

const earthRadiusKm = 6371.0

// distanceKm is the great-circle distance between two points holding
// latitude in X and longitude in Y.
func distanceKm(from, to pgtype.Point) float64 {
	lat1, lat2 := radians(from.P.X), radians(to.P.X)
	dLat := lat2 - lat1
	dLng := radians(to.P.Y - from.P.Y)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
