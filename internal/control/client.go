package control

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Resource is one inventory row as reported by a node.
type Resource struct {
	ID        string
	Reserved  bool
	Owner     string
	Timestamp float64
}

// Snapshot is a node's inventory.
type Snapshot struct {
	Self      string
	Resources []Resource
}

// Event is a node notification received on a Watch stream.
type Event struct {
	Kind    string
	Message string
}

// Client calls the control service of one node.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a node's control address without transport security.
// Extra options are appended to the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection if the client opened it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Reserve(ctx context.Context, id string) error {
	return c.cc.Invoke(ctx, reserveMethod, wrapperspb.String(id), new(emptypb.Empty))
}

func (c *Client) Unreserve(ctx context.Context, id string) error {
	return c.cc.Invoke(ctx, unreserveMethod, wrapperspb.String(id), new(emptypb.Empty))
}

func (c *Client) Inventory(ctx context.Context) (Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, inventoryMethod, new(emptypb.Empty), out); err != nil {
		return Snapshot{}, err
	}

	fields := out.GetFields()
	snap := Snapshot{Self: fields["self"].GetStringValue()}
	for _, v := range fields["resources"].GetListValue().GetValues() {
		r := v.GetStructValue().GetFields()
		snap.Resources = append(snap.Resources, Resource{
			ID:        r["id"].GetStringValue(),
			Reserved:  r["reserved"].GetBoolValue(),
			Owner:     r["owner"].GetStringValue(),
			Timestamp: r["timestamp"].GetNumberValue(),
		})
	}
	return snap, nil
}

func (c *Client) Peers(ctx context.Context) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, peersMethod, new(emptypb.Empty), out); err != nil {
		return nil, err
	}
	peers := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		peers = append(peers, v.GetStringValue())
	}
	return peers, nil
}

// Watch calls fn for every event until ctx is done, the stream ends, or fn
// returns an error.
func (c *Client) Watch(ctx context.Context, fn func(Event) error) error {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], watchMethod)
	if err != nil {
		return err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.SendMsg(new(emptypb.Empty)); err != nil {
		return err
	}
	if err := x.CloseSend(); err != nil {
		return err
	}

	for {
		ev, err := x.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fields := ev.GetFields()
		if err := fn(Event{Kind: fields["kind"].GetStringValue(), Message: fields["message"].GetStringValue()}); err != nil {
			return err
		}
	}
}
