package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/ledger"
)

const ledgerServiceName = "shiftreports.v1.LedgerService"

// LedgerServiceServer is the gRPC view of the status ledger. Messages are
// protobuf well-known types; uploads travel as Structs with the same field
// names as the REST API.
type LedgerServiceServer interface {
	ListUploads(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
	GetUpload(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	FlagUpload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnflagUpload(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ClearUploads(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	// WatchUploads streams a ledger snapshot every interval_ms (default 2s).
	WatchUploads(*wrapperspb.Int32Value, grpc.ServerStream) error
}

type LedgerService struct {
	ledger UploadLedger
	poller *ledger.Poller
	logger *slog.Logger
}

func NewLedgerService(l UploadLedger, poller *ledger.Poller, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{ledger: l, poller: poller, logger: logger}
}

func (s *LedgerService) ListUploads(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	limit := int(req.GetValue())
	if limit < 0 {
		return nil, common.InvalidArgumentError("limit must not be negative")
	}
	rows, err := s.ledger.Recent(ctx, limit)
	if err != nil {
		s.logger.Warn("grpc.list_uploads.failed", "error", err)
		return nil, common.ToGRPC(err)
	}
	out, err := uploadsToList(rows)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *LedgerService) GetUpload(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseID(req.GetValue())
	if err != nil {
		return nil, err
	}
	u, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, common.ToGRPC(err)
	}
	return uploadToStruct(u)
}

// FlagUpload expects {"id": "...", "reason": "..."}.
func (s *LedgerService) FlagUpload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id, err := parseID(fields["id"].GetStringValue())
	if err != nil {
		return nil, err
	}
	u, err := s.ledger.Flag(ctx, id, fields["reason"].GetStringValue())
	if err != nil {
		s.logger.Warn("grpc.flag_upload.failed", "upload_id", id, "error", err)
		return nil, common.ToGRPC(err)
	}
	return uploadToStruct(u)
}

func (s *LedgerService) UnflagUpload(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseID(req.GetValue())
	if err != nil {
		return nil, err
	}
	u, err := s.ledger.Unflag(ctx, id)
	if err != nil {
		return nil, common.ToGRPC(err)
	}
	return uploadToStruct(u)
}

func (s *LedgerService) ClearUploads(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.ledger.Clear(ctx)
	if err != nil {
		s.logger.Error("grpc.clear_uploads.failed", "error", err)
		return nil, common.ToGRPC(err)
	}
	return wrapperspb.Int64(n), nil
}

func (s *LedgerService) WatchUploads(req *wrapperspb.Int32Value, stream grpc.ServerStream) error {
	if s.poller == nil {
		return common.InternalError("watch is not configured")
	}
	interval := time.Duration(req.GetValue()) * time.Millisecond
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	var sendErr error
	s.poller.Subscribe(ctx, interval, func(rows []*entity.Upload, err error) {
		if err != nil {
			s.logger.Warn("grpc.watch_uploads.poll_failed", "error", err)
			return
		}
		snap, err := uploadsToList(rows)
		if err == nil {
			err = stream.SendMsg(snap)
		}
		if err != nil {
			sendErr = err
			cancel()
		}
	})
	if sendErr != nil {
		return sendErr
	}
	return nil
}

// LedgerServiceDesc registers LedgerServiceServer without generated stubs.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListUploads", Handler: unary(func(s LedgerServiceServer, ctx context.Context, in *wrapperspb.Int32Value) (any, error) {
			return s.ListUploads(ctx, in)
		})},
		{MethodName: "GetUpload", Handler: unary(func(s LedgerServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetUpload(ctx, in)
		})},
		{MethodName: "FlagUpload", Handler: unary(func(s LedgerServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.FlagUpload(ctx, in)
		})},
		{MethodName: "UnflagUpload", Handler: unary(func(s LedgerServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.UnflagUpload(ctx, in)
		})},
		{MethodName: "ClearUploads", Handler: unary(func(s LedgerServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ClearUploads(ctx, in)
		})},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchUploads",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(wrapperspb.Int32Value)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(LedgerServiceServer).WatchUploads(in, stream)
			},
		},
	},
	Metadata: "shiftreports/v1/ledger.proto",
}

// unary adapts a typed method into a grpc.MethodDesc handler. The type
// parameter supplies the request message to decode into.
func unary[In any, PIn interface {
	*In
}](call func(LedgerServiceServer, context.Context, PIn) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PIn(new(In))
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(LedgerServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		method, _ := grpc.Method(ctx)
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(PIn))
		})
	}
}

// NewGRPCServer returns a server carrying the ledger service, the standard
// health service and reflection.
func NewGRPCServer(svc LedgerServiceServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(unaryLogging(logger))}, opts...)
	gs := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)

	gs.RegisterService(&LedgerServiceDesc, svc)
	reflection.Register(gs)
	return gs, hs
}

// unaryLogging carries x-request-id from metadata into the context and logs
// each call.
func unaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" {
				ctx = common.WithRequestID(ctx, v[0])
			}
		}
		ctx, rid := common.EnsureRequestID(ctx)
		log := logger.With("req_id", rid)
		ctx = common.WithLogger(ctx, log)

		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			log.Warn("grpc.request.failed", append(attrs, "error", err)...)
		} else {
			log.Debug("grpc.request", attrs...)
		}
		return resp, err
	}
}

// LedgerClient calls LedgerService over a client connection.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient { return &LedgerClient{cc: cc} }

func (c *LedgerClient) ListUploads(ctx context.Context, limit int32, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/ListUploads", wrapperspb.Int32(limit), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetUpload(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/GetUpload", wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) FlagUpload(ctx context.Context, id, reason string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id, "reason": reason})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/FlagUpload", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) UnflagUpload(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/UnflagUpload", wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) ClearUploads(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/ClearUploads", &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// WatchUploads opens the snapshot stream. Call Recv until ctx is cancelled.
func (c *LedgerClient) WatchUploads(ctx context.Context, interval time.Duration, opts ...grpc.CallOption) (*UploadStream, error) {
	desc := &LedgerServiceDesc.Streams[0]
	st, err := c.cc.NewStream(ctx, desc, "/"+ledgerServiceName+"/WatchUploads", opts...)
	if err != nil {
		return nil, err
	}
	if err := st.SendMsg(wrapperspb.Int32(int32(interval / time.Millisecond))); err != nil {
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		return nil, err
	}
	return &UploadStream{st: st}, nil
}

type UploadStream struct {
	st grpc.ClientStream
}

func (s *UploadStream) Recv() (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := s.st.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	v := common.NewValidator().Field("id", raw, common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(raw), nil
}

func uploadToStruct(u *entity.Upload) (*structpb.Struct, error) {
	m, err := uploadToMap(u)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return st, nil
}

func uploadsToList(us []*entity.Upload) (*structpb.ListValue, error) {
	items := make([]any, 0, len(us))
	for _, u := range us {
		m, err := uploadToMap(u)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return structpb.NewList(items)
}

func uploadToMap(u *entity.Upload) (map[string]any, error) {
	b, err := json.Marshal(viewOf(u))
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
