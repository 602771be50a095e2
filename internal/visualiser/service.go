// Package visualiser streams live sweep frames to remote renderers over gRPC.
//
// The service is declared by hand and carries protobuf well-known types
// (structpb.Struct), so clients in any language can consume it with a
// generic Struct decoder and no generated stubs.
package visualiser

import (
	"context"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "radarsweep.Visualiser"

	streamSweepMethod = "/" + ServiceName + "/StreamSweep"
)

// VisualiserServer is the server API for the Visualiser service.
type VisualiserServer interface {
	// StreamSweep sends a frame every requested interval until the client
	// goes away.
	StreamSweep(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

func streamSweepHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(VisualiserServer).StreamSweep(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the Visualiser service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisualiserServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSweep",
			Handler:       streamSweepHandler,
			ServerStreams: true,
		},
	},
	Metadata: "radarsweep/visualiser.proto",
}

// RegisterService registers srv on the gRPC server.
func RegisterService(s grpc.ServiceRegistrar, srv VisualiserServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// StreamSweep opens a sweep stream on conn and calls fn for every frame until
// ctx is cancelled, the server ends the stream, or fn returns an error.
// An interval of zero lets the server choose.
func StreamSweep(ctx context.Context, conn grpc.ClientConnInterface, interval time.Duration, fn func(*Frame) error) error {
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], streamSweepMethod)
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}

	if err := stream.SendMsg(NewStreamRequest(interval)); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		frame, err := DecodeFrame(msg)
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
