package readings

import (
	"context"
	"log/slog"
	"time"

	"bsf-dashboard/internal/mqtt"
)

const ingestTimeout = 5 * time.Second

// Store is the write side of the local readings table.
type Store interface {
	InsertReading(ctx context.Context, sensor string, ts time.Time, temperature, humidity *float64) error
}

// RegisterIngest stores every valid telemetry message in store. The local row
// source picks the rows up on its next scan.
func RegisterIngest(subscriber mqtt.MQTTSubscriber, store Store, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	subscriber.SetMessageHandler(func(telemetry mqtt.Telemetry) error {
		logger.Debug("processing telemetry message",
			"sensor_id", telemetry.SensorID,
			"timestamp", telemetry.Timestamp,
		)

		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		err := store.InsertReading(ctx,
			telemetry.SensorID,
			telemetry.Timestamp,
			telemetry.Temperature,
			telemetry.Humidity,
		)
		if err != nil {
			logger.Error("failed to insert reading",
				"sensor_id", telemetry.SensorID,
				"error", err,
			)
			return err
		}

		logger.Debug("successfully stored telemetry", "sensor_id", telemetry.SensorID)
		return nil
	})
}
