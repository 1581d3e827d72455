package application

import (
	"math"
	"strconv"
	"strings"

	"provindex/internal/domain"
)

// ParseCoordinates turns a registry location string ("lat,lng") into coordinates. It never
// fails: input that does not hold exactly two comma-separated fields resolves to the origin,
// and a field that is not a finite number resolves to 0.
func ParseCoordinates(location string) domain.Coordinates {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return domain.Origin
	}
	return domain.Coordinates{parseDegree(parts[0]), parseDegree(parts[1])}
}

func parseDegree(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
