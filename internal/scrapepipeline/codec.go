package scrapepipeline

import "encoding/json"

// encodeFields/decodeCachedFields round-trip a Fields value through the
// Intelligent Content Cache's json.RawMessage Data column (spec.md §4.7).
func encodeFields(f Fields) (json.RawMessage, error) {
	return json.Marshal(f)
}

func decodeCachedFields(data json.RawMessage) (Fields, error) {
	var f Fields
	err := json.Unmarshal(data, &f)
	return f, err
}
