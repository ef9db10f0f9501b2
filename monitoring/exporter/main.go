// Standalone prometheus exporter: scrapes the core server's expvar endpoint
// and re-exposes the counters in prometheus format.
package main

import (
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type promHTTPLogger struct{}

func (l promHTTPLogger) Println(v ...interface{}) {
	log.Println(v...)
}

func main() {
	log.Printf("Core metrics exporter.")

	var (
		serverAddr  = flag.String("server_addr", "http://localhost:6060/stats/expvar/", "Address of the core server instance to scrape.")
		listenAt    = flag.String("listen_at", ":6222", "Host name and port to listen for incoming requests on.")
		metricList  = flag.String("metric_list",
			"LiveSubscriptions,TotalSubscriptions,FanoutEventsTotal,FanoutEventsDropped,ChatsCreated,MessagesCreated,CacheRebuilds,ViewsIncremented,memstats.Alloc",
			"Comma-separated list of metrics to scrape and export.")
		namespace   = flag.String("namespace", "core", "Prometheus namespace for metrics '<namespace>_...'")
		metricsPath = flag.String("metrics_path", "/metrics", "Path under which to expose metrics for Prometheus scrapes.")
		timeout     = flag.Int("timeout", 15, "Server connection timeout in seconds in response to Prometheus scrapes.")
	)
	flag.Parse()

	if *metricsPath == "/" {
		log.Fatal("Serving metrics from / is not supported")
	}

	// Index page at web root.
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Core Exporter</title></head><body>
<h1>Core Exporter</h1>
<p>Prometheus exporter path: <a href='` + *metricsPath + `'>Metrics</a></p>
</body></html>`))
	})

	metrics := strings.Split(*metricList, ",")
	scraper := Scraper{address: *serverAddr, metrics: metrics}

	exporter := NewPromExporter(*serverAddr, *namespace, time.Duration(*timeout)*time.Second, &scraper)
	registry := prometheus.NewRegistry()
	registry.MustRegister(exporter)
	http.Handle(*metricsPath,
		promhttp.InstrumentMetricHandler(
			registry,
			promhttp.HandlerFor(
				registry,
				promhttp.HandlerOpts{
					ErrorLog: &promHTTPLogger{},
					Timeout:  time.Duration(*timeout) * time.Second,
				},
			),
		),
	)

	log.Println("Reading expvar from", *serverAddr)
	log.Printf("Serving metrics at %s", *listenAt)
	log.Fatalln(http.ListenAndServe(*listenAt, nil))
}
