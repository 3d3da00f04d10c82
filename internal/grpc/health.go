package server

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/tejusbharadwaj/pvwatch/internal/ingest"
)

// IngestService is the health service name of the poll loop.
const IngestService = "pvwatch.ingest"

// HealthChecker implements the gRPC health checking protocol
type HealthChecker struct {
	grpc_health_v1.UnimplementedHealthServer
	mu     sync.RWMutex
	status map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
}

// NewHealthChecker reports the process as serving and the poll loop as
// unknown until its first tick.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		status: map[string]grpc_health_v1.HealthCheckResponse_ServingStatus{
			"":            grpc_health_v1.HealthCheckResponse_SERVING,
			IngestService: grpc_health_v1.HealthCheckResponse_UNKNOWN,
		},
	}
}

func (h *HealthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, ok := h.status[req.Service]; ok {
		return &grpc_health_v1.HealthCheckResponse{
			Status: status,
		}, nil
	}

	return nil, status.Error(codes.NotFound, "unknown service")
}

func (h *HealthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watching is not supported")
}

// SetServingStatus sets the serving status of a service
func (h *HealthChecker) SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[service] = status
}

// ReportOutcome marks the poll loop SERVING after a healthy tick and
// NOT_SERVING otherwise.
func (h *HealthChecker) ReportOutcome(outcome ingest.Outcome) {
	if outcome.Healthy() {
		h.SetServingStatus(IngestService, grpc_health_v1.HealthCheckResponse_SERVING)
		return
	}
	h.SetServingStatus(IngestService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}
