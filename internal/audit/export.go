package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

// WriteCSV menulis entry ke CSV dengan kolom tetap.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "created_at", "user_id", "action", "model_type", "model_id", "description", "old_values", "new_values", "ip_address"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		modelID := ""
		if e.ModelID != nil {
			modelID = e.ModelID.String()
		}
		ip := ""
		if e.IPAddress != nil {
			ip = *e.IPAddress
		}
		oldJSON, err := encodeValues(e.OldValues)
		if err != nil {
			return nil, err
		}
		newJSON, err := encodeValues(e.NewValues)
		if err != nil {
			return nil, err
		}
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			string(e.Action),
			e.ModelType,
			modelID,
			e.Description,
			oldJSON,
			newJSON,
			ip,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValues(v Values) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
