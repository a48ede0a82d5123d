package altitude

import (
	"context"
	"strings"
)

// DefaultMaxQueryLength is the maximum length in bytes of the encoded
// locations sent in a query string. Longer batches are sent in a request body.
const DefaultMaxQueryLength = 1024

// A Transport fetches altitudes from a remote elevation service.
type Transport interface {
	// Fetch returns coords with their altitudes set, in the same order. coords
	// is never empty.
	Fetch(ctx context.Context, coords []Coordinate) ([]Coordinate, error)
}

// A Strategy is a way of sending a batch of coordinates to the remote service.
type Strategy int

const (
	StrategyQuery Strategy = iota // Locations in the query string of a GET.
	StrategyBody                  // Locations in the JSON body of a POST.
)

func (s Strategy) String() string {
	switch s {
	case StrategyQuery:
		return "query"
	case StrategyBody:
		return "body"
	default:
		return "unknown"
	}
}

// EncodeLocations returns coords in the compact form
// "lat,lon|lat,lon|...".
func EncodeLocations(coords []Coordinate) string {
	var sb strings.Builder
	for i, coord := range coords {
		if i != 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(formatFloat(coord.latitude))
		sb.WriteByte(',')
		sb.WriteString(formatFloat(coord.longitude))
	}
	return sb.String()
}

// SelectStrategy returns the strategy for sending coords, given the maximum
// length of the encoded locations in a query string.
func SelectStrategy(coords []Coordinate, maxQueryLength int) Strategy {
	if len(EncodeLocations(coords)) > maxQueryLength {
		return StrategyBody
	}
	return StrategyQuery
}
