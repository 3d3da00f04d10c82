package middleware

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var info = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

// Mock handler echoing the request id it sees.
func echoRequestID(ctx context.Context, req interface{}) (interface{}, error) {
	return RequestIDFromContext(ctx), nil
}

func TestContextMiddleware_GeneratesID(t *testing.T) {
	resp, err := ContextMiddleware(context.Background(), nil, info, echoRequestID)
	assert.NoError(t, err)
	assert.Len(t, resp, 36)
}

func TestContextMiddleware_ReusesIncomingID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc-123"))
	resp, err := ContextMiddleware(ctx, nil, info, echoRequestID)
	assert.NoError(t, err)
	assert.Equal(t, "abc-123", resp)
}

func TestRateLimitingInterceptor(t *testing.T) {
	interceptor := NewRateLimitingInterceptor(rate.NewLimiter(0.001, 1))

	_, err := interceptor(context.Background(), nil, info, echoRequestID)
	assert.NoError(t, err)

	_, err = interceptor(context.Background(), nil, info, echoRequestID)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestLoggingAndMetricsPassThrough(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logging := NewLoggingInterceptor(logger)

	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	_, err := logging(context.Background(), nil, info, failing)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = MetricsInterceptor(context.Background(), nil, info, failing)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
