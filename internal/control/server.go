package control

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"peerreserve/internal/message"
	"peerreserve/internal/node"
	"peerreserve/internal/storage"
)

// Event kinds sent on Watch streams.
const (
	EventChanged = "changed"
	EventError   = "error"
)

// watchBuffer bounds the events queued per watcher; slower watchers miss
// events rather than block the node.
const watchBuffer = 32

// Node is the part of a node the control service drives.
type Node interface {
	Reserve(ctx context.Context, id string) error
	Unreserve(ctx context.Context, id string) error
	Inventory() []storage.Entry
	Peers() []message.Address
	Addr() message.Address
}

// Server implements ControlServer over a Node. It is also the node's
// observer and relays notifications to Watch streams.
type Server struct {
	node Node
	log  zerolog.Logger

	mu       sync.Mutex
	watchers map[chan *structpb.Struct]struct{}
}

var (
	_ ControlServer = (*Server)(nil)
	_ node.Observer = (*Server)(nil)
)

func NewServer(log zerolog.Logger, n Node) *Server {
	return &Server{
		node:     n,
		log:      log.With().Str("component", "control").Logger(),
		watchers: make(map[chan *structpb.Struct]struct{}),
	}
}

func (s *Server) Reserve(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "resource id is required")
	}
	if err := s.node.Reserve(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Unreserve(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "resource id is required")
	}
	if err := s.node.Unreserve(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Inventory returns {"self": addr, "resources": [{"id", "reserved", "owner", "timestamp"}]}.
func (s *Server) Inventory(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries := s.node.Inventory()
	resources := make([]any, 0, len(entries))
	for _, e := range entries {
		r := map[string]any{"id": e.ID, "reserved": e.Record != nil}
		if e.Record != nil {
			r["owner"] = e.Record.Owner.String()
			r["timestamp"] = float64(e.Record.Timestamp)
		}
		resources = append(resources, r)
	}
	out, err := structpb.NewStruct(map[string]any{
		"self":      s.node.Addr().String(),
		"resources": resources,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode inventory: %v", err)
	}
	return out, nil
}

func (s *Server) Peers(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	peers := s.node.Peers()
	values := make([]any, 0, len(peers))
	for _, p := range peers {
		values = append(values, p.String())
	}
	out, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode peers: %v", err)
	}
	return out, nil
}

// Watch streams node notifications until the client goes away.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch := make(chan *structpb.Struct, watchBuffer)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev := <-ch:
			if err := stream.Send(ev); err != nil {
				return err
			}
		}
	}
}

// Watchers returns the number of open Watch streams.
func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Server) OnInventoryChanged() {
	s.publish(EventChanged, "")
}

func (s *Server) OnError(msg string) {
	s.publish(EventError, msg)
}

func (s *Server) publish(kind, msg string) {
	ev, err := structpb.NewStruct(map[string]any{"kind": kind, "message": msg})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- ev:
		default:
			s.log.Debug().Str("kind", kind).Msg("watcher is slow, dropping event")
		}
	}
}

func toStatus(err error) error {
	var (
		unknown  node.UnknownResourceError
		notOwner node.NotOwnerError
		lockErr  node.LockTimeoutError
		promised node.PromisedError
	)
	switch {
	case errors.As(err, &unknown):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &notOwner):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.As(err, &lockErr), errors.As(err, &promised):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, node.ErrNotRunning):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
