// Package audit implements the tamper-evident, hash-chained audit trail.
// Every audit event is appended to an immutable log carrying the SHA-256
// hash of the previous event's canonical JSON form; replaying the chain
// and recomputing each hash detects any edit, reorder, or deletion.
package audit

import (
	"encoding/json"
	"sort"
	"time"
)

// GenesisHash is the prev_hash value for the first event ever appended.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event is one audit record. PrevHash links it to its predecessor; Hash
// is this event's own chain hash, stamped in by Log.Append just before
// the event is written. Hash is computed over the event's canonical
// JSON with the hash field itself excluded, so persisting it doesn't
// change what it hashes over; Replay and chain recovery both strip the
// same field before recomputing, so the stored value and the
// recomputed value always agree.
type Event struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	ActorID    string                 `json:"actor_id"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Status     string                 `json:"status"`
	Metadata   map[string]interface{} `json:"metadata"`
	PrevHash   string                 `json:"prev_hash"`
	Hash       string                 `json:"hash,omitempty"`
}

// Status values.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusDenied  = "DENIED"
)

// canonicalJSON re-encodes v with every object's keys sorted
// alphabetically at every nesting level, matching Python's
// json.dumps(..., sort_keys=True) byte for byte (modulo float
// formatting, which this codebase never hashes).
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, keyBytes...)
			out = append(out, ':')

			valBytes, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, valBytes...)
		}
		out = append(out, '}')
		return out, nil

	case []interface{}:
		out := []byte{'['}
		for i, elem := range val {
			if i > 0 {
				out = append(out, ',')
			}
			elemBytes, err := marshalSorted(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, elemBytes...)
		}
		out = append(out, ']')
		return out, nil

	default:
		return json.Marshal(val)
	}
}
