package session

import (
	"encoding/json"
	"errors"
	"time"
)

// Prune splits records into those still valid at now and those expired.
// The input slice is not modified.
func Prune(records []Record, now time.Time) (valid, expired []Record) {
	valid = make([]Record, 0, len(records))
	for _, r := range records {
		if r.IsExpired(now) {
			expired = append(expired, r)
			continue
		}
		valid = append(valid, r)
	}
	return valid, expired
}

// Filter returns the records whose scopes cover requested.
func Filter(records []Record, requested []string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Covers(requested) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record with the given id.
func Find(records []Record, id string) (Record, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Newest returns the most recently created record.
func Newest(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	return best, true
}

// CloneAll deep-copies a record list.
func CloneAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Marshal serializes records as a JSON list. A nil list is written as [].
func Marshal(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// Unmarshal parses a JSON record list and checks id uniqueness.
// Empty input yields an empty list.
func Unmarshal(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return []Record{}, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return nil, errors.Join(ErrMalformed, ErrDuplicateID)
		}
		seen[r.ID] = struct{}{}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
