package main

import (
	"fmt"
	"os"
	"time"

	influx "github.com/influxdata/influxdb1-client/v2"
	"github.com/rs/zerolog"

	solark "github.com/bbyrd74/go-solark"
)

// influxSink writes published readings to InfluxDB. It doubles as the
// poller's Notification so cycle errors land in the same log.
type influxSink struct {
	client    influx.Client
	database  string
	retention string
	plantID   string
	log       zerolog.Logger
}

func newInfluxSink(addr, database, retention, plantID string, log zerolog.Logger) (*influxSink, error) {
	client, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     addr,
		Username: os.Getenv("INFLUX_USER"),
		Password: os.Getenv("INFLUX_PASSW"),
	})
	if err != nil {
		return nil, fmt.Errorf("influx client for %q: %w", addr, err)
	}
	if _, _, err := client.Ping(5 * time.Second); err != nil {
		return nil, fmt.Errorf("ping %q: %w", addr, err)
	}
	return &influxSink{
		client:    client,
		database:  database,
		retention: retention,
		plantID:   plantID,
		log:       log,
	}, nil
}

func (s *influxSink) write(reading solark.Reading) error {
	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:        s.database,
		RetentionPolicy: s.retention,
	})
	if err != nil {
		return err
	}
	now := time.Now()
	for key, value := range reading {
		pt, err := influx.NewPoint("solark",
			map[string]string{"plant": s.plantID, "name": key},
			map[string]interface{}{"value": value},
			now)
		if err != nil {
			return err
		}
		bp.AddPoint(pt)
	}
	return s.client.Write(bp)
}

func (s *influxSink) Close() {
	_ = s.client.Close()
}

func (s *influxSink) ReadingPublished(reading solark.Reading) {
	if err := s.write(reading); err != nil {
		s.log.Error().Err(err).Msg("write batch to db")
	}
}

func (s *influxSink) TokenRefreshed(_ string) {
	s.log.Debug().Msg("token refreshed")
}

func (s *influxSink) TokenError(err error) {
	s.log.Error().Err(err).Msg("authentication failed")
}

func (s *influxSink) CycleError(err error) {
	s.log.Warn().Err(err).Msg("update failed")
}
