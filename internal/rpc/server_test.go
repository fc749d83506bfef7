package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type fixture struct {
	sim    *engine.Simulation
	runner *engine.Runner
	server *Server
	conn   *grpc.ClientConn
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	sim, err := engine.New(engine.Options{
		Settings: &config.Settings{Seed: config.Uint64(5), CarSpawnRate: config.Float64(12)},
		Clock:    clock,
	})
	require.NoError(t, err)
	runner := engine.NewRunner(sim, clock)

	srv := NewServer(runner, cfg)
	sim.Subscribe(srv)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &fixture{sim: sim, runner: runner, server: srv, conn: conn}
}

func (f *fixture) advance(seconds float64) {
	f.runner.Do(func(sim *engine.Simulation) {
		n := int(seconds/sim.Snapshot().Dt + 0.5)
		for i := 0; i < n; i++ {
			sim.Step()
		}
	})
}

func (f *fixture) watch(t *testing.T, ctx context.Context) grpc.ClientStream {
	t.Helper()
	cs, err := f.conn.NewStream(ctx, &WatchStatisticsDesc, MethodWatchStatistics)
	require.NoError(t, err)
	require.NoError(t, cs.SendMsg(&emptypb.Empty{}))
	require.NoError(t, cs.CloseSend())
	return cs
}

func TestGetStatisticsAndExport(t *testing.T) {
	f := newFixture(t, Config{})
	f.advance(30)
	ctx := context.Background()

	var st structpb.Struct
	require.NoError(t, f.conn.Invoke(ctx, MethodGetStatistics, &emptypb.Empty{}, &st))
	assert.InDelta(t, 30, st.Fields["simTime"].GetNumberValue(), 0.05)
	assert.Equal(t, f.sim.RunID().String(), st.Fields["runId"].GetStringValue())
	assert.Equal(t, float64(f.sim.Statistics().CurrentCars), st.Fields["currentCars"].GetNumberValue())
	assert.Len(t, st.Fields["lights"].GetStructValue().Fields, 4)

	var exp structpb.Struct
	require.NoError(t, f.conn.Invoke(ctx, MethodGetExport, &emptypb.Empty{}, &exp))
	assert.Equal(t, f.sim.RunID().String(), exp.Fields["runId"].GetStringValue())
}

func TestWatchStatisticsStreamsTicks(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs := f.watch(t, ctx)
	require.Eventually(t, func() bool { return f.server.Stats().Clients == 1 }, time.Second, 5*time.Millisecond)

	f.advance(3)
	for want := 1.0; want <= 3; want++ {
		var msg structpb.Struct
		require.NoError(t, cs.RecvMsg(&msg))
		assert.InDelta(t, want, msg.Fields["simTime"].GetNumberValue(), 1e-6)
		assert.NotNil(t, msg.Fields["statistics"].GetStructValue())
	}
	assert.Equal(t, uint64(3), f.server.Stats().Published)

	cancel()
	require.Eventually(t, func() bool { return f.server.Stats().Clients == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatchStatisticsLimits(t *testing.T) {
	f := newFixture(t, Config{MaxClients: 1, ClientBuffer: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.watch(t, ctx)
	require.Eventually(t, func() bool { return f.server.Stats().Clients == 1 }, time.Second, 5*time.Millisecond)

	second := f.watch(t, ctx)
	var msg structpb.Struct
	err := second.RecvMsg(&msg)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// Every tick is either queued for the one admitted client or dropped.
	f.advance(5)
	stats := f.server.Stats()
	assert.Equal(t, 1, stats.Clients)
	assert.Equal(t, uint64(5), stats.Published+stats.Dropped)
}

func TestStopEndsStreams(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs := f.watch(t, ctx)
	require.Eventually(t, func() bool { return f.server.Stats().Clients == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		f.server.Stop()
		close(done)
	}()
	var msg structpb.Struct
	assert.Error(t, cs.RecvMsg(&msg))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
