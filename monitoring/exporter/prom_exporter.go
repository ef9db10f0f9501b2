package main

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromExporter collects metrics in Prometheus format from a core server.
type PromExporter struct {
	address   string
	timeout   time.Duration
	namespace string

	scraper *Scraper

	up             *prometheus.Desc
	subsLive       *prometheus.Desc
	subsTotal      *prometheus.Desc
	eventsTotal    *prometheus.Desc
	eventsDropped  *prometheus.Desc
	chatsTotal     *prometheus.Desc
	messagesTotal  *prometheus.Desc
	cacheRebuilds  *prometheus.Desc
	viewsIncrTotal *prometheus.Desc
	malloced       *prometheus.Desc
}

// NewPromExporter returns an initialized Prometheus exporter.
func NewPromExporter(server, namespace string, timeout time.Duration, scraper *Scraper) *PromExporter {
	return &PromExporter{
		address:   server,
		timeout:   timeout,
		namespace: namespace,
		scraper:   scraper,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "up"),
			"If the core server instance is reachable.",
			nil,
			nil,
		),
		subsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "subscriptions_live_count"),
			"Number of currently active event subscriptions.",
			nil,
			nil,
		),
		subsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "subscriptions_total"),
			"Total number of event subscriptions since instance start.",
			nil,
			nil,
		),
		eventsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "fanout_events_total"),
			"Total number of events published to the fan-out registry.",
			nil,
			nil,
		),
		eventsDropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "fanout_events_dropped"),
			"Number of events dropped because a subscriber's queue was full.",
			nil,
			nil,
		),
		chatsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "chats_created_total"),
			"Total number of chats created since instance start.",
			nil,
			nil,
		),
		messagesTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_created_total"),
			"Total number of messages created since instance start.",
			nil,
			nil,
		),
		cacheRebuilds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cache_rebuilds_total"),
			"Number of successful aggregation cache rebuilds.",
			nil,
			nil,
		),
		viewsIncrTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "views_incremented_total"),
			"Number of page views written through to the source of record.",
			nil,
			nil,
		),
		malloced: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "malloced_bytes"),
			"Number of bytes of memory allocated and in use.",
			nil,
			nil,
		),
	}
}

// Describe describes all the metrics exported by the exporter. It implements
// prometheus.Collector.
func (e *PromExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.subsLive
	ch <- e.subsTotal
	ch <- e.eventsTotal
	ch <- e.eventsDropped
	ch <- e.chatsTotal
	ch <- e.messagesTotal
	ch <- e.cacheRebuilds
	ch <- e.viewsIncrTotal
	ch <- e.malloced
}

// Collect fetches statistics from the configured server instance, and
// delivers them as Prometheus metrics. It implements prometheus.Collector.
func (e *PromExporter) Collect(ch chan<- prometheus.Metric) {
	up := float64(1)
	if stats, err := e.scraper.Scrape(); err != nil {
		log.Println("Failed to fetch or parse response", err)
		up = 0
	} else {
		if err := e.parseStats(ch, stats); err != nil {
			up = 0
		}
	}

	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, up)
}

func (e *PromExporter) parseStats(ch chan<- prometheus.Metric, stats map[string]interface{}) error {
	err := firstError(
		e.parseAndUpdate(ch, e.subsLive, prometheus.GaugeValue, stats, "LiveSubscriptions"),
		e.parseAndUpdate(ch, e.subsTotal, prometheus.CounterValue, stats, "TotalSubscriptions"),
		e.parseAndUpdate(ch, e.eventsTotal, prometheus.CounterValue, stats, "FanoutEventsTotal"),
		e.parseAndUpdate(ch, e.eventsDropped, prometheus.CounterValue, stats, "FanoutEventsDropped"),
		e.parseAndUpdate(ch, e.chatsTotal, prometheus.CounterValue, stats, "ChatsCreated"),
		e.parseAndUpdate(ch, e.messagesTotal, prometheus.CounterValue, stats, "MessagesCreated"),
		e.parseAndUpdate(ch, e.cacheRebuilds, prometheus.CounterValue, stats, "CacheRebuilds"),
		e.parseAndUpdate(ch, e.viewsIncrTotal, prometheus.CounterValue, stats, "ViewsIncremented"),
		e.parseAndUpdate(ch, e.malloced, prometheus.GaugeValue, stats, "memstats.Alloc"),
	)

	return err
}

func (e *PromExporter) parseAndUpdate(ch chan<- prometheus.Metric, desc *prometheus.Desc, valueType prometheus.ValueType,
	stats map[string]interface{}, key string) error {
	if v, err := parseMetric(stats, key); err == nil {
		ch <- prometheus.MustNewConstMetric(desc, valueType, v)
		return nil
	} else {
		return err
	}
}

func firstError(errs ...error) error {
	for _, v := range errs {
		if v != nil {
			return v
		}
	}
	return nil
}
