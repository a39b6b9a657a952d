package api

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyOrderID 后端返回空 orderId
	ErrEmptyOrderID = errors.New("empty order id in response")
)

// createSubscribeOrderRequest 创建申购订单请求
type createSubscribeOrderRequest struct {
	ProductID       string          `json:"productId"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ProductQuantity decimal.Decimal `json:"productQuantity"`
	FundNetValue    decimal.Decimal `json:"fundNetValue"`
}

// createRedemptionOrderRequest 创建赎回订单请求
type createRedemptionOrderRequest struct {
	ProductID       string          `json:"productId"`
	RedeemAmount    decimal.Decimal `json:"redeemAmount"`
	ProductQuantity decimal.Decimal `json:"productQuantity"`
	FundNetValue    decimal.Decimal `json:"fundNetValue"`
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
}

type paySubscriptionOrderRequest struct {
	OrderID       string          `json:"orderId"`
	ApproveTxHash string          `json:"approveTxHash"`
	CashAmount    decimal.Decimal `json:"cashAmount"`
}

type payRedemptionOrderRequest struct {
	OrderID       string `json:"orderId"`
	IfRealize     bool   `json:"ifRealize"`
	ApproveTxHash string `json:"approveTxHash"`
}

// payOrderResponse 支付确认响应 (业务级 success 标志)
type payOrderResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

// OrderClient 订单协议客户端
//
// 四个端点严格成对使用: create 返回 orderId，pay 必须携带该
// orderId 和链上授权交易哈希。
type OrderClient struct {
	*Client
}

// NewOrderClient 创建订单协议客户端
func NewOrderClient(client *Client) *OrderClient {
	return &OrderClient{Client: client}
}

// CreateSubscribeOrder 创建申购订单，返回 orderId
func (c *OrderClient) CreateSubscribeOrder(ctx context.Context, productID string, totalAmount, productQuantity, fundNetValue decimal.Decimal) (string, error) {
	req := &createSubscribeOrderRequest{
		ProductID:       productID,
		TotalAmount:     totalAmount,
		ProductQuantity: productQuantity,
		FundNetValue:    fundNetValue,
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/order/v1/subscribe", req, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", ErrEmptyOrderID
	}
	return resp.OrderID, nil
}

// PaySubscriptionOrder 确认申购支付
//
// success == false 返回 *DomainError，携带服务端原文消息。
func (c *OrderClient) PaySubscriptionOrder(ctx context.Context, orderID, approveTxHash string, cashAmount decimal.Decimal) error {
	req := &paySubscriptionOrderRequest{
		OrderID:       orderID,
		ApproveTxHash: approveTxHash,
		CashAmount:    cashAmount,
	}

	var resp payOrderResponse
	if err := c.post(ctx, "/order/v1/paySubscriptionOrder", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &DomainError{Msg: resp.Msg}
	}
	return nil
}

// CreateRedemptionOrder 创建赎回订单，返回 orderId
func (c *OrderClient) CreateRedemptionOrder(ctx context.Context, productID string, redeemAmount, productQuantity, fundNetValue decimal.Decimal) (string, error) {
	req := &createRedemptionOrderRequest{
		ProductID:       productID,
		RedeemAmount:    redeemAmount,
		ProductQuantity: productQuantity,
		FundNetValue:    fundNetValue,
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/order/v1/redemption", req, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", ErrEmptyOrderID
	}
	return resp.OrderID, nil
}

// PayRedemptionOrder 确认赎回支付
func (c *OrderClient) PayRedemptionOrder(ctx context.Context, orderID string, ifRealize bool, approveTxHash string) error {
	req := &payRedemptionOrderRequest{
		OrderID:       orderID,
		IfRealize:     ifRealize,
		ApproveTxHash: approveTxHash,
	}

	var resp payOrderResponse
	if err := c.post(ctx, "/order/v1/payRedemptionOrder", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &DomainError{Msg: resp.Msg}
	}
	return nil
}
