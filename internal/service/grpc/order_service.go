// Package grpcsvc предоставляет gRPC-транспорт над сервисом заказов.
//
// Сообщения описаны well-known типами protobuf: заказ передаётся как
// google.protobuf.Struct во внешнем формате (numeroPedido, valorTotal, ...).
package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/mapper"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "orders.v1.OrderService"

// Поля запроса ReplaceOrder.
const (
	replaceOrderIDField = "orderId"
	replaceOrderField   = "order"
)

// Orders — операции прикладного сервиса, которые нужны транспорту.
type Orders interface {
	Create(ctx context.Context, payload map[string]any) (*mapper.ExternalOrder, error)
	Get(ctx context.Context, orderID string) (*mapper.ExternalOrder, error)
	List(ctx context.Context) ([]*mapper.ExternalOrder, error)
	Replace(ctx context.Context, orderID string, payload map[string]any) (*mapper.ExternalOrder, error)
	Delete(ctx context.Context, orderID string) (bool, error)
}

// OrderServiceServer — серверная сторона orders.v1.OrderService.
type OrderServiceServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListOrders(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ReplaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteOrder(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// OrderService реализует OrderServiceServer.
type OrderService struct {
	orders Orders
	logger *log.Entry
}

var _ OrderServiceServer = (*OrderService)(nil)

// NewOrderService создаёт gRPC-обработчик заказов.
func NewOrderService(orders Orders, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{orders: orders, logger: logger}
}

// CreateOrder создаёт заказ из внешнего представления.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil || len(req.GetFields()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "order payload is empty")
	}

	order, err := s.orders.Create(ctx, req.AsMap())
	if err != nil {
		return nil, s.toStatus("CreateOrder", err)
	}
	return s.orderStruct("CreateOrder", order)
}

// GetOrder возвращает заказ по numeroPedido.
func (s *OrderService) GetOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	order, err := s.orders.Get(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("GetOrder", err)
	}
	return s.orderStruct("GetOrder", order)
}

// ListOrders возвращает все заказы, новые первыми.
func (s *OrderService) ListOrders(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, s.toStatus("ListOrders", err)
	}

	values := make([]any, 0, len(orders))
	for _, order := range orders {
		values = append(values, order.AsMap())
	}
	list, err := structpb.NewList(values)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode order list")
		return nil, status.Error(codes.Internal, "failed to encode orders")
	}
	return list, nil
}

// ReplaceOrder заменяет заказ целиком. Запрос: {"orderId": "...", "order": {...}}.
func (s *OrderService) ReplaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	orderID := fields[replaceOrderIDField].GetStringValue()
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}
	body := fields[replaceOrderField].GetStructValue()
	if body == nil {
		return nil, status.Error(codes.InvalidArgument, "order is required")
	}

	order, err := s.orders.Replace(ctx, orderID, body.AsMap())
	if err != nil {
		return nil, s.toStatus("ReplaceOrder", err)
	}
	return s.orderStruct("ReplaceOrder", order)
}

// DeleteOrder удаляет заказ; false, если заказа не было.
func (s *OrderService) DeleteOrder(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	deleted, err := s.orders.Delete(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("DeleteOrder", err)
	}
	return wrapperspb.Bool(deleted), nil
}

func (s *OrderService) orderStruct(operation string, order *mapper.ExternalOrder) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(order.AsMap())
	if err != nil {
		s.logger.WithError(err).WithField("operation", operation).Error("failed to encode order")
		return nil, status.Error(codes.Internal, "failed to encode order")
	}
	return out, nil
}

// toStatus переводит ошибку сервиса в gRPC-статус. Текст неклассифицированных ошибок наружу не отдаётся.
func (s *OrderService) toStatus(operation string, err error) error {
	code := codeOf(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("order operation failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.AlreadyExists
	case domain.KindConstraint:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// RegisterOrderService регистрирует сервис на gRPC-сервере.
func RegisterOrderService(registrar grpc.ServiceRegistrar, srv OrderServiceServer) {
	registrar.RegisterService(&OrderServiceDesc, srv)
}

// OrderServiceDesc описывает orders.v1.OrderService для grpc.Server.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler: unaryHandler("CreateOrder", func(srv OrderServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.CreateOrder(ctx, in)
			}),
		},
		{
			MethodName: "GetOrder",
			Handler: unaryHandler("GetOrder", func(srv OrderServiceServer, ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
				return srv.GetOrder(ctx, in)
			}),
		},
		{
			MethodName: "ListOrders",
			Handler: unaryHandler("ListOrders", func(srv OrderServiceServer, ctx context.Context, in *emptypb.Empty) (*structpb.ListValue, error) {
				return srv.ListOrders(ctx, in)
			}),
		},
		{
			MethodName: "ReplaceOrder",
			Handler: unaryHandler("ReplaceOrder", func(srv OrderServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.ReplaceOrder(ctx, in)
			}),
		},
		{
			MethodName: "DeleteOrder",
			Handler: unaryHandler("DeleteOrder", func(srv OrderServiceServer, ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
				return srv.DeleteOrder(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// unaryHandler повторяет то, что генерирует protoc-gen-go-grpc для унарного метода.
func unaryHandler[Req any, Resp any](
	method string,
	call func(OrderServiceServer, context.Context, *Req) (Resp, error),
) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
