package api

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"shiftbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type togglePinger struct {
	mu  sync.Mutex
	err error
}

func (p *togglePinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *togglePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func startGRPC(t *testing.T, pinger Pinger) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	logger := zerolog.Nop()
	srv, err := NewGRPCServer(config.APIGRPCConfig{Enabled: true, Port: 0, Reflection: true}, pinger, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	conn, err := grpc.NewClient("127.0.0.1:"+port, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func TestGRPCHealthFollowsStore(t *testing.T) {
	pinger := &togglePinger{}
	srv, client := startGRPC(t, pinger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus(), "before first check")

	srv.checkHealth(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	pinger.set(errors.New("store unreachable"))
	srv.checkHealth(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCRequestID(t *testing.T) {
	srv, client := startGRPC(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.checkHealth(ctx)

	var header metadata.MD
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, "req-42")
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(requestIDMetadataKey))
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := zerolog.Nop()
	interceptor := ChainUnaryInterceptors(RecoveryUnaryInterceptor(&logger))
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Panic"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestChainUnaryInterceptorsOrder(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return h(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mk("a"), mk("b"))
	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{}, func(_ context.Context, req any) (any, error) {
		order = append(order, "handler")
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
