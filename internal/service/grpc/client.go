package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OrderServiceClient — клиент orders.v1.OrderService.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиента поверх соединения.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodPath("CreateOrder"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodPath("GetOrder"), wrapperspb.String(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodPath("ListOrders"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceOrder собирает запрос {"orderId", "order"} и вызывает ReplaceOrder.
func (c *OrderServiceClient) ReplaceOrder(ctx context.Context, orderID string, order *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		replaceOrderIDField: structpb.NewStringValue(orderID),
		replaceOrderField:   structpb.NewStructValue(order),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodPath("ReplaceOrder"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) DeleteOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodPath("DeleteOrder"), wrapperspb.String(orderID), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func methodPath(method string) string {
	return "/" + ServiceName + "/" + method
}
