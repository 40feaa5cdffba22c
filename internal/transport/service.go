package transport

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "chordring.ChordService"

// Full method names.
const (
	methodFindSuccessor  = "/" + serviceName + "/FindSuccessor"
	methodGetSuccessor   = "/" + serviceName + "/GetSuccessor"
	methodGetPredecessor = "/" + serviceName + "/GetPredecessor"
	methodGetAddress     = "/" + serviceName + "/GetAddress"
	methodNotify         = "/" + serviceName + "/Notify"
	methodPing           = "/" + serviceName + "/Ping"
)

// chordServiceServer is the server API for ChordService.
type chordServiceServer interface {
	FindSuccessor(context.Context, *findSuccessorRequest) (*nodeResponse, error)
	GetSuccessor(context.Context, *emptyMessage) (*nodeResponse, error)
	GetPredecessor(context.Context, *emptyMessage) (*nodeResponse, error)
	GetAddress(context.Context, *emptyMessage) (*nodeResponse, error)
	Notify(context.Context, *notifyRequest) (*emptyMessage, error)
	Ping(context.Context, *pingRequest) (*pingResponse, error)
}

var chordServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*chordServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindSuccessor", Handler: unaryHandler(methodFindSuccessor, chordServiceServer.FindSuccessor)},
		{MethodName: "GetSuccessor", Handler: unaryHandler(methodGetSuccessor, chordServiceServer.GetSuccessor)},
		{MethodName: "GetPredecessor", Handler: unaryHandler(methodGetPredecessor, chordServiceServer.GetPredecessor)},
		{MethodName: "GetAddress", Handler: unaryHandler(methodGetAddress, chordServiceServer.GetAddress)},
		{MethodName: "Notify", Handler: unaryHandler(methodNotify, chordServiceServer.Notify)},
		{MethodName: "Ping", Handler: unaryHandler(methodPing, chordServiceServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "protobuf/chord.proto",
}

// unaryHandler decodes the request and runs call through the interceptor chain.
func unaryHandler[Req, Resp any](fullMethod string, call func(chordServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc := srv.(chordServiceServer)
		if interceptor == nil {
			return call(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(svc, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// chordServiceClient is the client API for ChordService.
type chordServiceClient struct {
	cc grpc.ClientConnInterface
}

func newChordServiceClient(cc grpc.ClientConnInterface) *chordServiceClient {
	return &chordServiceClient{cc: cc}
}

func (c *chordServiceClient) FindSuccessor(ctx context.Context, in *findSuccessorRequest, opts ...grpc.CallOption) (*nodeResponse, error) {
	out := new(nodeResponse)
	if err := c.cc.Invoke(ctx, methodFindSuccessor, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordServiceClient) GetSuccessor(ctx context.Context, in *emptyMessage, opts ...grpc.CallOption) (*nodeResponse, error) {
	out := new(nodeResponse)
	if err := c.cc.Invoke(ctx, methodGetSuccessor, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordServiceClient) GetPredecessor(ctx context.Context, in *emptyMessage, opts ...grpc.CallOption) (*nodeResponse, error) {
	out := new(nodeResponse)
	if err := c.cc.Invoke(ctx, methodGetPredecessor, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordServiceClient) GetAddress(ctx context.Context, in *emptyMessage, opts ...grpc.CallOption) (*nodeResponse, error) {
	out := new(nodeResponse)
	if err := c.cc.Invoke(ctx, methodGetAddress, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordServiceClient) Notify(ctx context.Context, in *notifyRequest, opts ...grpc.CallOption) (*emptyMessage, error) {
	out := new(emptyMessage)
	if err := c.cc.Invoke(ctx, methodNotify, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chordServiceClient) Ping(ctx context.Context, in *pingRequest, opts ...grpc.CallOption) (*pingResponse, error) {
	out := new(pingResponse)
	if err := c.cc.Invoke(ctx, methodPing, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
