package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"bothan/internal/monitoring"
)

// jsonCodec lets the hand-registered ServiceDesc below exchange plain Go
// structs over the wire instead of requiring protoc-generated message
// types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GetInfoRequest/Response, UpdateRegistryRequest/Response,
// GetPricesRequest/Response, and PushMonitoringRecordsRequest/Response
// are the four RPC-facing message pairs (§6).
type GetInfoRequest struct{}

type GetInfoResponse struct {
	SignalIDs []string `json:"signal_ids"`
}

type UpdateRegistryRequest struct {
	IPFSHash string          `json:"ipfs_hash,omitempty"`
	Registry json.RawMessage `json:"registry,omitempty"`
	// Version is a semver range (e.g. ">= 1.0.0, < 2.0.0") bothand's own
	// running version must satisfy for this update to be accepted.
	// Empty falls back to the server's configured default.
	Version string `json:"version,omitempty"`
}

type UpdateRegistryResponse struct {
	Ok bool `json:"ok"`
}

type GetPricesRequest struct {
	SignalIDs []string `json:"signal_ids"`
}

type GetPricesResponse struct {
	Results []PriceResult `json:"results"`
}

type PushMonitoringRecordsRequest struct {
	Records []monitoring.SignalComputationRecord `json:"records"`
}

type PushMonitoringRecordsResponse struct {
	Ok bool `json:"ok"`
}

// priceServiceServer is the interface GRPCServer implements and the
// hand-written handlers below dispatch to.
type priceServiceServer interface {
	GetInfo(ctx context.Context, req *GetInfoRequest) (*GetInfoResponse, error)
	UpdateRegistry(ctx context.Context, req *UpdateRegistryRequest) (*UpdateRegistryResponse, error)
	GetPrices(ctx context.Context, req *GetPricesRequest) (*GetPricesResponse, error)
	PushMonitoringRecords(ctx context.Context, req *PushMonitoringRecordsRequest) (*PushMonitoringRecordsResponse, error)
}

func _GetInfo_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(priceServiceServer).GetInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bothan.PriceService/GetInfo"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(priceServiceServer).GetInfo(ctx, req.(*GetInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _UpdateRegistry_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateRegistryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(priceServiceServer).UpdateRegistry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bothan.PriceService/UpdateRegistry"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(priceServiceServer).UpdateRegistry(ctx, req.(*UpdateRegistryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _GetPrices_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetPricesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(priceServiceServer).GetPrices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bothan.PriceService/GetPrices"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(priceServiceServer).GetPrices(ctx, req.(*GetPricesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PushMonitoringRecords_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PushMonitoringRecordsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(priceServiceServer).PushMonitoringRecords(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bothan.PriceService/PushMonitoringRecords"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(priceServiceServer).PushMonitoringRecords(ctx, req.(*PushMonitoringRecordsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is bothand's hand-registered gRPC service description,
// standing in for a .proto-generated one.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "bothan.PriceService",
	HandlerType: (*priceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInfo", Handler: _GetInfo_Handler},
		{MethodName: "UpdateRegistry", Handler: _UpdateRegistry_Handler},
		{MethodName: "GetPrices", Handler: _GetPrices_Handler},
		{MethodName: "PushMonitoringRecords", Handler: _PushMonitoringRecords_Handler},
	},
	Metadata: "bothan.rpc",
}

// GRPCServer implements priceServiceServer against a Manager.
type GRPCServer struct {
	manager                   Manager
	uplink                    monitoring.Uplink
	staleness                 time.Duration
	defaultVersionRequirement string
}

// NewGRPCServer builds a GRPCServer. uplink may be nil.
// defaultVersionRequirement is used for UpdateRegistry calls that don't
// set their own Version.
func NewGRPCServer(m Manager, uplink monitoring.Uplink, staleness time.Duration, defaultVersionRequirement string) *GRPCServer {
	return &GRPCServer{manager: m, uplink: uplink, staleness: staleness, defaultVersionRequirement: defaultVersionRequirement}
}

func (s *GRPCServer) GetInfo(ctx context.Context, req *GetInfoRequest) (*GetInfoResponse, error) {
	v, ok := s.manager.Registry()
	if !ok {
		return nil, fmt.Errorf("rpc: no registry installed")
	}
	return &GetInfoResponse{SignalIDs: v.Keys()}, nil
}

func (s *GRPCServer) UpdateRegistry(ctx context.Context, req *UpdateRegistryRequest) (*UpdateRegistryResponse, error) {
	versionRequirement := req.Version
	if versionRequirement == "" {
		versionRequirement = s.defaultVersionRequirement
	}

	var err error
	switch {
	case req.IPFSHash != "":
		err = s.manager.SetRegistryFromIPFS(ctx, req.IPFSHash, versionRequirement)
	case len(req.Registry) > 0:
		err = s.manager.SetRegistry(req.Registry, versionRequirement)
	default:
		err = fmt.Errorf("rpc: request must set either ipfs_hash or registry")
	}
	if err != nil {
		return nil, err
	}
	return &UpdateRegistryResponse{Ok: true}, nil
}

func (s *GRPCServer) GetPrices(ctx context.Context, req *GetPricesRequest) (*GetPricesResponse, error) {
	states, err := s.manager.GetPrices(ctx, req.SignalIDs, s.staleness, time.Now())
	if err != nil {
		return nil, err
	}
	return &GetPricesResponse{Results: toPriceResults(req.SignalIDs, states)}, nil
}

func (s *GRPCServer) PushMonitoringRecords(ctx context.Context, req *PushMonitoringRecordsRequest) (*PushMonitoringRecordsResponse, error) {
	if s.uplink == nil {
		return nil, fmt.Errorf("rpc: monitoring uplink not configured")
	}
	if err := monitoring.PublishRecords(ctx, s.uplink, req.Records); err != nil {
		return nil, err
	}
	return &PushMonitoringRecordsResponse{Ok: true}, nil
}

// NewGRPCServerHandle builds a *grpc.Server with srv registered under
// ServiceDesc, without starting to serve. Callers that need a graceful
// shutdown path (cmd/bothand) hold onto the returned handle to call
// GracefulStop once the process is asked to exit.
func NewGRPCServerHandle(srv *GRPCServer) *grpc.Server {
	g := grpc.NewServer()
	g.RegisterService(&ServiceDesc, srv)
	return g
}

// Listen starts a gRPC server on addr with GRPCServer registered under
// ServiceDesc. It blocks until the listener errors or Serve returns.
func Listen(addr string, srv *GRPCServer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return NewGRPCServerHandle(srv).Serve(lis)
}
