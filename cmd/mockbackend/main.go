package main

import (
	"flag"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argoview/floatchat/internal/backendstub"
	"github.com/argoview/floatchat/internal/infrastructure/monitoring"
)

// mockbackend serves the same scriptable fake the tests run against,
// so the chat client can be exercised without the real analysis stack.
func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	delay := flag.Duration("delay", 0, "Artificial latency per request")
	unhealthy := flag.Bool("unhealthy", false, "Report unhealthy from /health")
	flag.Parse()

	stub := backendstub.New()
	stub.SetDelay(*delay)
	stub.SetHealthy(!*unhealthy)
	if *delay > 0 {
		log.Printf("Adding %v latency to every request", delay.Round(time.Millisecond))
	}

	gin.SetMode(gin.ReleaseMode)
	registry := prometheus.NewRegistry()
	router := stub.Router(monitoring.Middleware(monitoring.NewRequestMetrics(registry)))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	log.Printf("Mock backend listening on %s", *addr)
	if err := router.Run(*addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
