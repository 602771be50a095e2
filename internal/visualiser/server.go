package visualiser

import (
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/radar-sweep/internal/monitoring"
	"github.com/banshee-data/radar-sweep/internal/sweep"
	"github.com/banshee-data/radar-sweep/internal/timeutil"
)

// Frame interval bounds accepted from clients.
const (
	DefaultInterval = 100 * time.Millisecond
	MinInterval     = 20 * time.Millisecond
	MaxInterval     = 5 * time.Second
)

var logf = monitoring.Prefixed("gRPC")

// Ensure Server implements the gRPC interface.
var _ VisualiserServer = (*Server)(nil)

// Server renders frames from a Reconstructor for each connected client.
type Server struct {
	recon           *sweep.Reconstructor
	clock           timeutil.Clock
	defaultInterval time.Duration
	clients         atomic.Int64
}

// NewServer returns a Server. A zero defaultInterval selects DefaultInterval.
func NewServer(recon *sweep.Reconstructor, defaultInterval time.Duration) *Server {
	if defaultInterval <= 0 {
		defaultInterval = DefaultInterval
	}
	return &Server{
		recon:           recon,
		clock:           timeutil.RealClock{},
		defaultInterval: ClampInterval(defaultInterval),
	}
}

// Clients returns the number of open streams.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// ClampInterval bounds d to [MinInterval, MaxInterval].
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	default:
		return d
	}
}

func (s *Server) requestedInterval(req *structpb.Struct) (time.Duration, error) {
	v, ok := req.GetFields()["interval_ms"]
	if !ok {
		return s.defaultInterval, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "interval_ms must be a number")
	}
	ms := n.NumberValue
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return s.defaultInterval, nil
	case ms >= float64(MaxInterval/time.Millisecond):
		// checked before converting, large values overflow time.Duration
		return MaxInterval, nil
	}
	return ClampInterval(time.Duration(ms * float64(time.Millisecond))), nil
}

// StreamSweep implements VisualiserServer. The first frame is sent at once.
func (s *Server) StreamSweep(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	interval, err := s.requestedInterval(req)
	if err != nil {
		return err
	}

	n := s.clients.Add(1)
	defer s.clients.Add(-1)
	logf("client connected: interval=%v clients=%d", interval, n)

	ctx := stream.Context()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		frame := NewFrame(s.recon, seq, s.clock.Now())
		if err := stream.Send(frame.Encode()); err != nil {
			logf("send error: %v", err)
			return err
		}
		seq++

		select {
		case <-ctx.Done():
			logf("client disconnected after %d frames", seq)
			return status.FromContextError(ctx.Err()).Err()
		case <-ticker.C():
		}
	}
}

// Publisher owns the gRPC listener.
type Publisher struct {
	addr   string
	srv    *Server
	server *grpc.Server

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewPublisher prepares a Publisher that will serve srv on addr.
func NewPublisher(addr string, srv *Server) *Publisher {
	return &Publisher{addr: addr, srv: srv}
}

// Start binds the listener and serves in the background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.addr, err)
	}

	p.mu.Lock()
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterService(p.server, p.srv)
	p.mu.Unlock()
	p.running.Store(true)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logf("listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			logf("server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop closes open streams and waits for the server to exit.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.server.Stop()
	p.wg.Wait()
	logf("server stopped")
}
