package middleware

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/tejusbharadwaj/pvwatch/internal/metrics"
)

// MetricsInterceptor records request counts by method and status code, and latency by method.
func MetricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	// Record metrics
	duration := time.Since(start).Seconds()
	method := path.Base(info.FullMethod)

	metrics.Requests.WithLabelValues(method, status.Code(err).String()).Inc()
	metrics.Latency.WithLabelValues(method).Observe(duration)

	return resp, err
}
