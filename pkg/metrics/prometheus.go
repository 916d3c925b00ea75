package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Prometheus exposes HTTP request metrics for a gin engine on a dedicated
// listen address, separate from the application port.
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	registry   *prometheus.Registry
	listenAddr string
	urlMapping func(c *gin.Context) string
	log        *zap.SugaredLogger
}

type NewPrometheusOptions struct {
	Subsystem string
	// ReqCntURLLabelMappingFn maps a request to its url label, typically the
	// route template rather than the raw path to bound cardinality.
	ReqCntURLLabelMappingFn func(c *gin.Context) string
	Logger                  *zap.SugaredLogger
}

func NewPrometheus(opts NewPrometheusOptions) *Prometheus {
	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "http"
	}
	mapping := opts.ReqCntURLLabelMappingFn
	if mapping == nil {
		mapping = func(c *gin.Context) string { return c.Request.URL.Path }
	}

	p := &Prometheus{
		reqCnt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "req_total",
				Help:      "How many HTTP requests processed, partitioned by status code, method and url.",
			},
			[]string{"code", "method", "url"},
		),
		reqDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      "req_dur_ms",
				Help:      "The HTTP request latencies in milliseconds.",
				Buckets:   HistogramBuckets,
			},
			[]string{"code", "method", "url"},
		),
		registry:   prometheus.NewRegistry(),
		urlMapping: mapping,
		log:        opts.Logger,
	}
	p.registry.MustRegister(p.reqCnt, p.reqDur)
	return p
}

// SetListenAddress configures the address the /metrics endpoint listens on.
func (p *Prometheus) SetListenAddress(addr string) {
	p.listenAddr = addr
}

// Use attaches the middleware to the engine and starts the metrics listener.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.handlerFunc())

	if p.listenAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(p.listenAddr, mux); err != nil && p.log != nil {
			p.log.Errorf("metrics listener error: %v", err)
		}
	}()
}

func (p *Prometheus) handlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.urlMapping(c)
		elapsed := float64(time.Since(start).Milliseconds())

		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(elapsed)
	}
}
