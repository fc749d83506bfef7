// Package rpc serves the simulation over gRPC. Messages are protobuf
// well-known types (Empty in, Struct out) carrying the same keys as the JSON
// API, so no generated code is needed.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/httputil"
)

// Config controls the listener and client limits.
type Config struct {
	ListenAddr string
	// MaxClients caps concurrent WatchStatistics streams.
	MaxClients int
	// ClientBuffer is the per-stream tick queue; ticks beyond it are dropped.
	ClientBuffer int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50051",
		MaxClients:   8,
		ClientBuffer: 32,
	}
}

var _ engine.Observer = (*Server)(nil)

// Server implements the Simulation service and fans statistics ticks out to
// streaming clients.
type Server struct {
	config Config
	runner *engine.Runner
	grpc   *grpc.Server

	clientsMu sync.RWMutex
	clients   map[uint64]chan engine.StatisticsTick
	nextID    atomic.Uint64

	published atomic.Uint64
	dropped   atomic.Uint64

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates the gRPC server and registers the service on it.
func NewServer(runner *engine.Runner, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	s := &Server{
		config:  cfg,
		runner:  runner,
		grpc:    grpc.NewServer(),
		clients: make(map[uint64]chan engine.StatisticsTick),
		stopCh:  make(chan struct{}),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[gRPC] listening on %s", lis.Addr())
		if err := s.Serve(lis); err != nil {
			log.Printf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("rpc server already running")
	}
	return s.grpc.Serve(lis)
}

// Stop ends open streams and waits for in-flight calls.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.grpc.GracefulStop()
	s.wg.Wait()
	s.running.Store(false)
}

// Stats reports streaming counters.
type Stats struct {
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func (s *Server) Stats() Stats {
	s.clientsMu.RLock()
	n := len(s.clients)
	s.clientsMu.RUnlock()
	return Stats{Clients: n, Published: s.published.Load(), Dropped: s.dropped.Load()}
}

// OnStatisticsTick queues the tick for every stream without blocking the
// engine.
func (s *Server) OnStatisticsTick(t engine.StatisticsTick) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, ch := range s.clients {
		select {
		case ch <- t:
			s.published.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) OnVehicleCompleted(engine.VehicleCompletion) {}

func (s *Server) addClient() (uint64, chan engine.StatisticsTick, error) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if len(s.clients) >= s.config.MaxClients {
		return 0, nil, status.Errorf(codes.ResourceExhausted, "client limit %d reached", s.config.MaxClients)
	}
	id := s.nextID.Add(1)
	ch := make(chan engine.StatisticsTick, s.config.ClientBuffer)
	s.clients[id] = ch
	return id, ch, nil
}

func (s *Server) removeClient(id uint64) {
	s.clientsMu.Lock()
	delete(s.clients, id)
	s.clientsMu.Unlock()
}

type liveStatistics struct {
	engine.Statistics
	SimTime           float64           `json:"simTime"`
	Running           bool              `json:"running"`
	RunID             string            `json:"runId"`
	Lights            map[string]string `json:"lights"`
	TotalCarsDetected int               `json:"totalCarsDetected"`
}

// GetStatistics returns the headline statistics and light colors.
func (s *Server) GetStatistics(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	var ls liveStatistics
	s.runner.Do(func(sim *engine.Simulation) {
		ls = liveStatistics{
			Statistics:        sim.Statistics(),
			SimTime:           sim.SimTime(),
			Running:           sim.Running(),
			RunID:             sim.RunID().String(),
			Lights:            sim.LightStates(),
			TotalCarsDetected: sim.TotalCarsDetected(),
		}
	})
	return toStruct(ls)
}

// GetExport returns the full traffic export.
func (s *Server) GetExport(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	var exp engine.Export
	s.runner.Do(func(sim *engine.Simulation) { exp = sim.ExportTrafficData() })
	return toStruct(exp)
}

// WatchStatistics streams one message per simulated second until the client
// goes away or the server stops.
func (s *Server) WatchStatistics(_ *emptypb.Empty, stream grpc.ServerStream) error {
	id, ch, err := s.addClient()
	if err != nil {
		return err
	}
	defer s.removeClient(id)
	log.Printf("[gRPC] WatchStatistics client %d connected", id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[gRPC] WatchStatistics client %d gone", id)
			return nil
		case <-s.stopCh:
			return nil
		case t := <-ch:
			msg, err := toStruct(t)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	st, err := httputil.StructOf(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return st, nil
}
