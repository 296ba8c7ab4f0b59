package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Telemetry is one DHT sample published by a sensor node.
type Telemetry struct {
	SensorID    string    `json:"sensor_id"`
	Timestamp   time.Time `json:"-"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
}

// UnmarshalJSON accepts the timestamp as RFC3339 text or epoch seconds, the
// latter being what the DHT uploader writes to the table.
func (t *Telemetry) UnmarshalJSON(b []byte) error {
	type alias Telemetry
	var aux struct {
		alias
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*t = Telemetry(aux.alias)

	raw := strings.TrimSpace(string(aux.Timestamp))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(aux.Timestamp, &s); err != nil {
			return err
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Timestamp = ts
		return nil
	}
	var secs float64
	if err := json.Unmarshal(aux.Timestamp, &secs); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return fmt.Errorf("timestamp: invalid epoch %v", secs)
	}
	t.Timestamp = time.Unix(int64(secs), 0)
	return nil
}

// sensorFromTopic extracts {id} from a sensors/{id}/dht style topic.
func sensorFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[0] == "sensors" {
		return parts[1]
	}
	return ""
}
