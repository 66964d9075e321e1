package state

import "encoding/json"

// Encode serializes a TurnState to its canonical JSON form (§6.4): messages
// as {type, content, metadata}, every *_time field as an ISO-8601 string
// (time.Time already marshals to RFC3339, a strict ISO-8601 profile), and
// enums as their underlying string values via their struct tags.
func Encode(s TurnState) ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a TurnState from its canonical JSON form. encoding/json
// silently ignores unrecognized fields, satisfying the forward-compatible
// tolerance §6.4 requires of loaders.
func Decode(data []byte) (TurnState, error) {
	var s TurnState
	if err := json.Unmarshal(data, &s); err != nil {
		return TurnState{}, err
	}
	return s, nil
}
