package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/skyfeed/skyfeed/internal/models"
)

// payloadVersion is the current persisted content format
const payloadVersion = 1

type payload struct {
	Version int           `json:"v"`
	Records []models.Post `json:"records"`
}

// Encode serialises records in the current payload format
func Encode(records []models.Post) (string, error) {
	if records == nil {
		records = []models.Post{}
	}
	data, err := json.Marshal(payload{Version: payloadVersion, Records: records})
	if err != nil {
		return "", fmt.Errorf("failed to encode cache content: %w", err)
	}
	return string(data), nil
}

// Decode parses persisted content. A bare JSON array is the unversioned legacy format.
func Decode(content string) ([]models.Post, error) {
	data := bytes.TrimSpace([]byte(content))
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []models.Post
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("invalid legacy cache content: %w", err)
		}
		return records, nil
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid cache content: %w", err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("unsupported cache content version %d", p.Version)
	}
	return p.Records, nil
}
