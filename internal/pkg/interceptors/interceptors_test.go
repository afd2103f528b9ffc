package interceptors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestUnaryServerInterceptor(t *testing.T) {
	var got string
	handler := func(ctx context.Context, req any) (any, error) {
		got = GetIDFromContext(ctx)
		return nil, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "req-42"))
	_, err := UnaryServerInterceptor()(ctx, nil, info, handler)
	assert.NoError(t, err)
	assert.Equal(t, "req-42", got)

	_, err = UnaryServerInterceptor()(context.Background(), nil, info, handler)
	assert.NoError(t, err)
	assert.NotEqual(t, "unknown", got)
	assert.NotEmpty(t, got)
}

func TestGetIDFromContextUnknown(t *testing.T) {
	assert.Equal(t, "unknown", GetIDFromContext(context.Background()))
}
