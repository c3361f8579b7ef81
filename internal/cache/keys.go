package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenerationKey holds the counter bumped whenever records of model change.
// Find and where keys embed it, so a bump orphans every cached response.
func GenerationKey(model string) string {
	return "gen:" + model
}

// FindKey is the key of a cached find response
func FindKey(model string, generation int64, id interface{}) string {
	return fmt.Sprintf("find:%s:%d:%v", model, generation, id)
}

// WhereKey is the key of a cached where response. The query is hashed in its
// JSON form, whose object keys are sorted.
func WhereKey(model string, generation int64, query map[string]interface{}) (string, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("where:%s:%d:%s", model, generation, hex.EncodeToString(hash[:16])), nil
}
