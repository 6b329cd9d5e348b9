package b2

import (
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogimage_b2_requests_total",
		Help: "Total number of B2 API calls by call and response status",
	}, []string{"call", "status"})

	uploadAttemptCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogimage_b2_upload_attempts_total",
		Help: "Total number of B2 upload attempts by outcome",
	}, []string{"outcome"})
)

func statusLabel(resp *resty.Response) string {
	return strconv.Itoa(resp.StatusCode())
}
