package config

import (
	"encoding/json"
	"hash/fnv"
)

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// CanonicalHashJSON hashes a JSON blob in a form stable across whitespace
// and key-order differences, so reformatting a config block does not
// count as a change. Blobs that fail to round-trip hash as raw bytes.
func CanonicalHashJSON(raw json.RawMessage) uint64 {
	if len(raw) == 0 {
		return 0
	}
	var doc any
	if json.Unmarshal(raw, &doc) != nil {
		return hashBytes(raw)
	}
	canon, err := json.Marshal(doc)
	if err != nil {
		return hashBytes(raw)
	}
	return hashBytes(canon)
}
