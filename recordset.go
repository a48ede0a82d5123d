package altitude

import (
	"encoding/json"
	"slices"
)

// A RecordSet is an ordered set of resolved coordinates. Two coordinates are
// the same member if they are at the same location, see
// [Coordinate.SameLocation]. The first record added for a location wins.
type RecordSet struct {
	records []Coordinate
	index   map[roundingKey]int
}

// NewRecordSet returns a new RecordSet containing records.
func NewRecordSet(records ...Coordinate) *RecordSet {
	s := &RecordSet{
		index: make(map[roundingKey]int, len(records)),
	}
	for _, record := range records {
		s.Add(record)
	}
	return s
}

// Add adds record to s. It returns false, leaving s unchanged, if s already
// contains a record at the same location.
func (s *RecordSet) Add(record Coordinate) bool {
	key := record.key()
	if _, ok := s.index[key]; ok {
		return false
	}
	if s.index == nil {
		s.index = make(map[roundingKey]int)
	}
	s.index[key] = len(s.records)
	s.records = append(s.records, record)
	return true
}

// Find returns the record in s at the same location as candidate.
func (s *RecordSet) Find(candidate Coordinate) (Coordinate, bool) {
	i, ok := s.index[candidate.key()]
	if !ok {
		return Coordinate{}, false
	}
	return s.records[i], true
}

// Len returns the number of records in s.
func (s *RecordSet) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in s in insertion order.
func (s *RecordSet) Records() []Coordinate {
	return slices.Clone(s.records)
}

// MarshalJSON implements encoding/json.Marshaler. s is encoded as an array.
func (s *RecordSet) MarshalJSON() ([]byte, error) {
	if s.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.records)
}

// UnmarshalJSON implements encoding/json.Unmarshaler.
func (s *RecordSet) UnmarshalJSON(data []byte) error {
	var records []Coordinate
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = *NewRecordSet(records...)
	return nil
}
