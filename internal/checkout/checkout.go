package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"FoodCart/internal/api"
	"FoodCart/internal/cart"
)

var (
	ErrEmptyCart     = errors.New("checkout: cart is empty")
	ErrAddress       = errors.New("checkout: delivery address required")
	ErrPaymentMethod = errors.New("checkout: unsupported payment method")
	ErrSubmitFailed  = errors.New("checkout: order submission failed")
)

var paymentMethods = map[string]struct{}{
	"cod":     {},
	"card":    {},
	"momo":    {},
	"vnpay":   {},
	"zalopay": {},
}

type Details struct {
	DeliveryAddress string `json:"deliveryAddress"`
	Phone           string `json:"phone,omitempty"`
	PaymentMethod   string `json:"paymentMethod"`
	Note            string `json:"note,omitempty"`
}

func (d Details) normalize() (Details, error) {
	d.DeliveryAddress = strings.TrimSpace(d.DeliveryAddress)
	d.Phone = strings.TrimSpace(d.Phone)
	d.PaymentMethod = strings.ToLower(strings.TrimSpace(d.PaymentMethod))
	d.Note = strings.TrimSpace(d.Note)

	if d.DeliveryAddress == "" {
		return Details{}, ErrAddress
	}
	if _, ok := paymentMethods[d.PaymentMethod]; !ok {
		return Details{}, ErrPaymentMethod
	}
	return d, nil
}

type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req api.OrderRequest) (api.Order, error)
}

type Service struct {
	Cart   *cart.Store
	Orders OrderSubmitter
	Log    *zap.Logger
}

// Submit places an order for the current cart contents and clears the cart
// once the backend accepts it. On any failure the cart is left as it was.
func (s *Service) Submit(ctx context.Context, d Details) (api.Order, error) {
	d, err := d.normalize()
	if err != nil {
		return api.Order{}, err
	}

	items := s.Cart.Items()
	if len(items) == 0 {
		return api.Order{}, ErrEmptyCart
	}

	req := BuildRequest(items, d)

	o, err := s.Orders.CreateOrder(ctx, req)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("order submission failed",
				zap.Error(err),
				zap.Int("lines", len(items)),
				zap.String("total", req.TotalPrice.String()),
			)
		}
		return api.Order{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	s.Cart.Clear()

	if s.Log != nil {
		s.Log.Info("order placed",
			zap.String("order_id", o.ID),
			zap.String("payment_method", d.PaymentMethod),
			zap.String("total", req.TotalPrice.String()),
		)
	}
	return o, nil
}

// BuildRequest maps cart lines to the backend's order shape.
func BuildRequest(items []cart.LineItem, d Details) api.OrderRequest {
	req := api.OrderRequest{
		Items:           make([]api.OrderItem, 0, len(items)),
		DeliveryAddress: d.DeliveryAddress,
		Phone:           d.Phone,
		PaymentMethod:   d.PaymentMethod,
		Note:            d.Note,
	}

	for _, it := range items {
		req.Items = append(req.Items, api.OrderItem{
			FoodID:   it.ProductID,
			Quantity: it.Quantity,
			Price:    it.Price,
			Options:  it.Options,
		})
		req.TotalPrice = req.TotalPrice.Add(it.Subtotal())
	}
	return req
}
