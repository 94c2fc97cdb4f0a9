package grpc

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ScanServiceName      = "serialrent.v1.ScanService"
	ScanFullMethod       = "/serialrent.v1.ScanService/Scan"
	ResolveTagFullMethod = "/serialrent.v1.ScanService/ResolveTag"
)

// ScanServer is the scanner-facing RPC surface. Messages are google.protobuf.Struct
// values carrying the same JSON shapes as the REST scan endpoint.
type ScanServer interface {
	Scan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveTag(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type ScanHandler struct {
	scans    service.ScanService
	registry service.SerialRegistry
}

func NewScanHandler(scans service.ScanService, registry service.SerialRegistry) *ScanHandler {
	return &ScanHandler{scans: scans, registry: registry}
}

func (h *ScanHandler) Scan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var scan domain.ScanRequest
	if err := fromStruct(req, &scan); err != nil {
		return nil, err
	}
	actor, err := GetActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	scan.Actor = actor

	return toStruct(h.scans.Scan(ctx, scan))
}

func (h *ScanHandler) ResolveTag(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := req.GetFields()["token"].GetStringValue()
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	serial, err := h.registry.ResolveTag(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(serial)
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode gRPC response", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		logger.Error("Failed to convert gRPC response", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// RegisterScanServer mirrors what protoc-gen-go-grpc emits for a service of Struct messages.
func RegisterScanServer(s grpc.ServiceRegistrar, srv ScanServer) {
	s.RegisterService(&ScanService_ServiceDesc, srv)
}

var ScanService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ScanServiceName,
	HandlerType: (*ScanServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Scan", Handler: _ScanService_Scan_Handler},
		{MethodName: "ResolveTag", Handler: _ScanService_ResolveTag_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "serialrent/v1/scan.proto",
}

func _ScanService_Scan_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScanServer).Scan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScanFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ScanServer).Scan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ScanService_ResolveTag_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScanServer).ResolveTag(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveTagFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ScanServer).ResolveTag(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
