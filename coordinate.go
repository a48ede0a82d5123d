package altitude

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// precision is the number of decimal places to which the remote service
// rounds latitudes and longitudes.
const precision = 1e6

var validate = validator.New()

// A Coordinate is a latitude, longitude, and altitude. The zero value is
// (0, 0) with altitude 0.
type Coordinate struct {
	latitude  float64
	longitude float64
	altitude  float64
}

// coordinateRange carries the validation rules for a Coordinate.
type coordinateRange struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

// NewCoordinate returns a new Coordinate at latitude and longitude with an
// altitude of zero.
func NewCoordinate(latitude, longitude float64) (Coordinate, error) {
	if err := validate.Struct(coordinateRange{
		Latitude:  latitude,
		Longitude: longitude,
	}); err != nil {
		return Coordinate{}, newValidationError(latitude, longitude, err)
	}
	return Coordinate{
		latitude:  latitude,
		longitude: longitude,
	}, nil
}

// MustNewCoordinate is like NewCoordinate but panics on error.
func MustNewCoordinate(latitude, longitude float64) Coordinate {
	c, err := NewCoordinate(latitude, longitude)
	if err != nil {
		panic(err)
	}
	return c
}

// Latitude returns c's latitude.
func (c Coordinate) Latitude() float64 { return c.latitude }

// Longitude returns c's longitude.
func (c Coordinate) Longitude() float64 { return c.longitude }

// Altitude returns c's altitude in meters above sea level.
func (c Coordinate) Altitude() float64 { return c.altitude }

// WithAltitude returns a copy of c with its altitude set to altitude.
func (c Coordinate) WithAltitude(altitude float64) Coordinate {
	c.altitude = altitude
	return c
}

// SameLocation returns true if c and other have the same latitude and
// longitude when rounded to the remote service's precision. Altitudes are
// ignored.
func (c Coordinate) SameLocation(other Coordinate) bool {
	return c.key() == other.key()
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%s;%s;%s)",
		formatFloat(c.latitude),
		formatFloat(c.longitude),
		formatFloat(c.altitude),
	)
}

// A roundingKey identifies a location at the remote service's precision.
type roundingKey struct {
	lat int64
	lon int64
}

func (c Coordinate) key() roundingKey {
	return roundingKey{
		lat: int64(math.Round(c.latitude * precision)),
		lon: int64(math.Round(c.longitude * precision)),
	}
}

type coordinateJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// MarshalJSON implements encoding/json.Marshaler.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(coordinateJSON{
		Latitude:  c.latitude,
		Longitude: c.longitude,
		Altitude:  c.altitude,
	})
}

// UnmarshalJSON implements encoding/json.Unmarshaler. elevation is accepted
// as an alias for altitude.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var value struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Altitude  *float64 `json:"altitude"`
		Elevation *float64 `json:"elevation"`
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.Latitude == nil || value.Longitude == nil {
		return errors.New("missing latitude or longitude")
	}
	coord, err := NewCoordinate(*value.Latitude, *value.Longitude)
	if err != nil {
		return err
	}
	switch {
	case value.Altitude != nil:
		coord.altitude = *value.Altitude
	case value.Elevation != nil:
		coord.altitude = *value.Elevation
	}
	*c = coord
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
