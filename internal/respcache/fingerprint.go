package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint derives a cache key from a request path and body, matching
// the original implementation's sha256(path::body) scheme. Identical
// requests collapse onto the same key regardless of which upstream key
// ultimately served them.
func Fingerprint(path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte("::"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// StoredResponse is the serialized form of a cached upstream response:
// status code, selected headers, and the full body. It is marshaled to
// JSON before being handed to the underlying Cache, which only deals in
// opaque byte slices.
type StoredResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

// EncodeResponse serializes a StoredResponse for storage.
func EncodeResponse(r StoredResponse) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, ErrSerializationFailed
	}
	return data, nil
}

// DecodeResponse deserializes a StoredResponse previously written by EncodeResponse.
func DecodeResponse(data []byte) (StoredResponse, error) {
	var r StoredResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return StoredResponse{}, ErrSerializationFailed
	}
	return r, nil
}
