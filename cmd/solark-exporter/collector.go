package main

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	solark "github.com/bbyrd74/go-solark"
)

// Collector implements prometheus.Collector over the canonical reading. One
// fetch-and-normalize cycle runs per scrape.
type Collector struct {
	client  *solark.Client
	plantID string
	log     zerolog.Logger

	readings      map[string]*prometheus.Desc
	scrapeSuccess *prometheus.Desc
}

// NewCollector builds a collector for one plant, with one gauge per
// guaranteed canonical key.
func NewCollector(client *solark.Client, plantID string, log zerolog.Logger) *Collector {
	readings := make(map[string]*prometheus.Desc)
	for _, s := range solark.Sensors() {
		readings[s.Key] = prometheus.NewDesc(
			"solark_"+s.Key+unitSuffix(s.Unit),
			s.Name+" ("+s.Unit+")",
			[]string{"plant_id"},
			nil,
		)
	}
	return &Collector{
		client:   client,
		plantID:  plantID,
		log:      log,
		readings: readings,
		scrapeSuccess: prometheus.NewDesc(
			"solark_scrape_success",
			"Whether fetching the Sol-Ark cloud API was successful",
			[]string{"plant_id"},
			nil,
		),
	}
}

func unitSuffix(unit string) string {
	switch unit {
	case "W":
		return "_watts"
	case "kWh":
		return "_kwh"
	case "%":
		return "_percent"
	default:
		return "_" + strings.ToLower(unit)
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.readings {
		ch <- desc
	}
	ch <- c.scrapeSuccess
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	raw, err := c.client.Fetch(ctx, c.plantID)
	if err != nil {
		c.log.Error().Str("plant", c.plantID).Err(err).Msg("fetch failed")
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0, c.plantID)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 1, c.plantID)

	reading := solark.Normalize(raw)
	for key, desc := range c.readings {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, reading[key], c.plantID)
	}
}
