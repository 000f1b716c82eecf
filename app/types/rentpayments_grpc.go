package types

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const RentPaymentsServiceName = "rentpayments.RentPaymentsService"

const (
	RentPaymentsService_Health_FullMethodName        = "/" + RentPaymentsServiceName + "/Health"
	RentPaymentsService_CreatePayment_FullMethodName = "/" + RentPaymentsServiceName + "/CreatePayment"
	RentPaymentsService_GetPayment_FullMethodName    = "/" + RentPaymentsServiceName + "/GetPayment"
	RentPaymentsService_ListPayments_FullMethodName  = "/" + RentPaymentsServiceName + "/ListPayments"
	RentPaymentsService_CancelPayment_FullMethodName = "/" + RentPaymentsServiceName + "/CancelPayment"
)

type RentPaymentsServiceServer interface {
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	CreatePayment(context.Context, *CreatePaymentRequest) (*PaymentEnvelopeResponse, error)
	GetPayment(context.Context, *GetPaymentRequest) (*PaymentEnvelopeResponse, error)
	ListPayments(context.Context, *ListPaymentsRequest) (*ListPaymentsResponse, error)
	CancelPayment(context.Context, *CancelPaymentRequest) (*PaymentEnvelopeResponse, error)
}

type UnimplementedRentPaymentsServiceServer struct{}

func (UnimplementedRentPaymentsServiceServer) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}

func (UnimplementedRentPaymentsServiceServer) CreatePayment(context.Context, *CreatePaymentRequest) (*PaymentEnvelopeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreatePayment not implemented")
}

func (UnimplementedRentPaymentsServiceServer) GetPayment(context.Context, *GetPaymentRequest) (*PaymentEnvelopeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetPayment not implemented")
}

func (UnimplementedRentPaymentsServiceServer) ListPayments(context.Context, *ListPaymentsRequest) (*ListPaymentsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPayments not implemented")
}

func (UnimplementedRentPaymentsServiceServer) CancelPayment(context.Context, *CancelPaymentRequest) (*PaymentEnvelopeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelPayment not implemented")
}

func RegisterRentPaymentsServiceServer(s grpc.ServiceRegistrar, srv RentPaymentsServiceServer) {
	s.RegisterService(&RentPaymentsService_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(RentPaymentsServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RentPaymentsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(RentPaymentsServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var RentPaymentsService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: RentPaymentsServiceName,
	HandlerType: (*RentPaymentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Health",
			Handler:    unaryHandler(RentPaymentsService_Health_FullMethodName, RentPaymentsServiceServer.Health),
		},
		{
			MethodName: "CreatePayment",
			Handler:    unaryHandler(RentPaymentsService_CreatePayment_FullMethodName, RentPaymentsServiceServer.CreatePayment),
		},
		{
			MethodName: "GetPayment",
			Handler:    unaryHandler(RentPaymentsService_GetPayment_FullMethodName, RentPaymentsServiceServer.GetPayment),
		},
		{
			MethodName: "ListPayments",
			Handler:    unaryHandler(RentPaymentsService_ListPayments_FullMethodName, RentPaymentsServiceServer.ListPayments),
		},
		{
			MethodName: "CancelPayment",
			Handler:    unaryHandler(RentPaymentsService_CancelPayment_FullMethodName, RentPaymentsServiceServer.CancelPayment),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rentpayments.json",
}

type RentPaymentsServiceClient interface {
	Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
	CreatePayment(ctx context.Context, in *CreatePaymentRequest, opts ...grpc.CallOption) (*PaymentEnvelopeResponse, error)
	GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*PaymentEnvelopeResponse, error)
	ListPayments(ctx context.Context, in *ListPaymentsRequest, opts ...grpc.CallOption) (*ListPaymentsResponse, error)
	CancelPayment(ctx context.Context, in *CancelPaymentRequest, opts ...grpc.CallOption) (*PaymentEnvelopeResponse, error)
}

type rentPaymentsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRentPaymentsServiceClient(cc grpc.ClientConnInterface) RentPaymentsServiceClient {
	return &rentPaymentsServiceClient{cc: cc}
}

func (c *rentPaymentsServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, callOpts...)
}

func (c *rentPaymentsServiceClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, RentPaymentsService_Health_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rentPaymentsServiceClient) CreatePayment(ctx context.Context, in *CreatePaymentRequest, opts ...grpc.CallOption) (*PaymentEnvelopeResponse, error) {
	out := new(PaymentEnvelopeResponse)
	if err := c.invoke(ctx, RentPaymentsService_CreatePayment_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rentPaymentsServiceClient) GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*PaymentEnvelopeResponse, error) {
	out := new(PaymentEnvelopeResponse)
	if err := c.invoke(ctx, RentPaymentsService_GetPayment_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rentPaymentsServiceClient) ListPayments(ctx context.Context, in *ListPaymentsRequest, opts ...grpc.CallOption) (*ListPaymentsResponse, error) {
	out := new(ListPaymentsResponse)
	if err := c.invoke(ctx, RentPaymentsService_ListPayments_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rentPaymentsServiceClient) CancelPayment(ctx context.Context, in *CancelPaymentRequest, opts ...grpc.CallOption) (*PaymentEnvelopeResponse, error) {
	out := new(PaymentEnvelopeResponse)
	if err := c.invoke(ctx, RentPaymentsService_CancelPayment_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
