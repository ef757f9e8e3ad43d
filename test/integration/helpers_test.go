package integration

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/structpb"
)

func structFromJSON(raw string) (*structpb.Struct, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	return structpb.NewStruct(payload)
}
