// Package rpcchannel implements the "RPC channel" emitter from spec.md
// §1/§6: an external collaborator that only needs to know how to push
// events onto a queue. It is a bidirectional-streaming gRPC service
// (google.golang.org/grpc) whose wire messages are
// google.golang.org/protobuf/types/known/wrapperspb.BytesValue envelopes
// — a thin framing channel built on the well-known wrapper type, with no
// protoc-generated code, the way a hand-rolled ServiceDesc is wired in
// the teacher's pkg/api package but stripped down to one bidi stream.
//
// Inbound frames are decoded into an event.Event and pushed onto the
// channel's own child MultiQueue, exactly like any other watcher; this is
// the vehicle for testing the "focus pattern" (spec.md §8 S4): a caller
// can drive one channel's queue with ProcessEventsUntil while another
// channel's frames sit queued on the shared parent.
package rpcchannel

import (
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/loop"
)

// ServiceName is the gRPC service name advertised by the hand-written
// ServiceDesc below.
const ServiceName = "mqloop.rpcchannel.Channel"

// StreamServer is the server-side half of the Stream RPC: a bidirectional
// stream of raw byte frames. It plays the role a protoc-generated
// Channel_StreamServer interface would, without requiring protoc.
type StreamServer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

type streamServer struct {
	grpc.ServerStream
}

func (x *streamServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *streamServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ChannelServer is implemented by Service.
type ChannelServer interface {
	Stream(StreamServer) error
}

func channelStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChannelServer).Stream(&streamServer{stream})
}

// ServiceDesc is the hand-written grpc.ServiceDesc for the Channel
// service: one bidirectional-streaming method named "Stream".
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChannelServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       channelStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "rpcchannel.proto",
}

// FrameHandler turns a decoded inbound frame's payload into an
// event.Event to push onto the channel's queue. Returning a nil Event
// drops the frame (e.g. a keepalive).
type FrameHandler func(payload []byte) event.Event

// Service implements ChannelServer: each accepted stream becomes a child
// queue of root, fed by inbound frames. Outbound frames are written to the
// peer directly by Service.Send and do not pass through the queue.
type Service struct {
	root   *event.MultiQueue
	loop   *loop.Loop
	decode FrameHandler

	mu       sync.Mutex
	channels map[*event.MultiQueue]StreamServer
}

// NewService builds a Service whose channels are children of root, woken
// through l the same way any other watcher is.
func NewService(l *loop.Loop, root *event.MultiQueue, decode FrameHandler) *Service {
	return &Service{
		root:     root,
		loop:     l,
		decode:   decode,
		channels: make(map[*event.MultiQueue]StreamServer),
	}
}

// Stream implements ChannelServer. It blocks for the lifetime of the gRPC
// stream, decoding each inbound frame into an Event pushed onto a new
// child queue of s.root, and keeps the stream registered under that queue
// so Service.Send can write outbound frames to the peer.
func (s *Service) Stream(stream StreamServer) error {
	q := event.NewChild(s.root)
	s.mu.Lock()
	s.channels[q] = stream
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.channels, q)
		s.mu.Unlock()
		q.PurgeEvents()
		q.Free()
	}()

	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		ev := s.decode(frame.GetValue())
		if ev.IsNil() {
			continue
		}

		q.PutEvent(ev)
		s.loop.Wake()
	}
}

// Send writes payload to the peer of the channel identified by q. It may
// be called from any goroutine, but calls for the same channel must not
// overlap: Send does not serialize writes to one gRPC stream.
func (s *Service) Send(q *event.MultiQueue, payload []byte) error {
	s.mu.Lock()
	stream, ok := s.channels[q]
	s.mu.Unlock()
	if !ok {
		return grpc.ErrServerStopped
	}
	return stream.Send(wrapperspb.Bytes(payload))
}
