package codec

import "encoding/json"

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

// JSON is the standard-library JSON codec.
//
// Only exported fields are persisted. Items that hold transient state
// (handles, caches, the owning link) should keep it in unexported fields and
// rebuild it in their load hook.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }
