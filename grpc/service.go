// Package stagefundgrpc is the gRPC transport between a stagefund host
// and an out-of-process application. Messages are the stagefund/types
// structs encoded with cramberry; there is no protobuf code generation.
package stagefundgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/stagefund/types"
)

const serviceName = "stagefund.v1.Application"

// ApplicationServer is the server side of the gRPC service.
type ApplicationServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.GateVerdict, error)
	ExecuteBlock(context.Context, *types.FinalizedBlock) (*types.BlockOutcome, error)
	Commit(context.Context, *CommitRequest) (*types.CommitResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
	Simulate(context.Context, *SimulateRequest) (*types.TxOutcome, error)
}

// RegisterApplicationServer registers srv on a gRPC server.
func RegisterApplicationServer(s *grpc.Server, srv ApplicationServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler, running the
// server's interceptor chain.
func unary[Req any, Resp any](method string, call func(ApplicationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ApplicationServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ApplicationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ApplicationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Handshake", ApplicationServer.Handshake),
		unary("CheckTx", ApplicationServer.CheckTx),
		unary("ExecuteBlock", ApplicationServer.ExecuteBlock),
		unary("Commit", ApplicationServer.Commit),
		unary("Query", ApplicationServer.Query),
		unary("Simulate", ApplicationServer.Simulate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stagefund/v1/application.cram",
}
