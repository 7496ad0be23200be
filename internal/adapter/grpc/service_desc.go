package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "networth.v1.NetWorthService"

// NetWorthServiceServer is the server API for NetWorthService.
// Requests and responses are free-form structs; field names are camelCase.
type NetWorthServiceServer interface {
	CreateInstitution(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListInstitutions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateInstitution(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteInstitution(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAccounts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetAccountActive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSnapshots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyBrokerageSplit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBrokerageEntries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCurrencyBreakdown(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPerformance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConvertCurrency(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLatestRates(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(NetWorthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(NetWorthServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(srv.(NetWorthServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// NetWorthServiceDesc is the grpc.ServiceDesc for NetWorthService
var NetWorthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NetWorthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateInstitution", NetWorthServiceServer.CreateInstitution),
		method("ListInstitutions", NetWorthServiceServer.ListInstitutions),
		method("UpdateInstitution", NetWorthServiceServer.UpdateInstitution),
		method("DeleteInstitution", NetWorthServiceServer.DeleteInstitution),
		method("CreateAccount", NetWorthServiceServer.CreateAccount),
		method("ListAccounts", NetWorthServiceServer.ListAccounts),
		method("UpdateAccount", NetWorthServiceServer.UpdateAccount),
		method("SetAccountActive", NetWorthServiceServer.SetAccountActive),
		method("DeleteAccount", NetWorthServiceServer.DeleteAccount),
		method("RecordSnapshot", NetWorthServiceServer.RecordSnapshot),
		method("RecordBatch", NetWorthServiceServer.RecordBatch),
		method("DeleteSnapshot", NetWorthServiceServer.DeleteSnapshot),
		method("ListSnapshots", NetWorthServiceServer.ListSnapshots),
		method("ApplyBrokerageSplit", NetWorthServiceServer.ApplyBrokerageSplit),
		method("ListBrokerageEntries", NetWorthServiceServer.ListBrokerageEntries),
		method("GetSummary", NetWorthServiceServer.GetSummary),
		method("GetHistory", NetWorthServiceServer.GetHistory),
		method("GetCurrencyBreakdown", NetWorthServiceServer.GetCurrencyBreakdown),
		method("GetPerformance", NetWorthServiceServer.GetPerformance),
		method("ConvertCurrency", NetWorthServiceServer.ConvertCurrency),
		method("GetLatestRates", NetWorthServiceServer.GetLatestRates),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "networth/v1/networth.proto",
}

// RegisterNetWorthServiceServer registers srv on s
func RegisterNetWorthServiceServer(s grpc.ServiceRegistrar, srv NetWorthServiceServer) {
	s.RegisterService(&NetWorthServiceDesc, srv)
}

// Client calls NetWorthService methods by name
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with a request built from fields
func (c *Client) Call(ctx context.Context, method string, fields map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
