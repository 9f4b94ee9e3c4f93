package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"FoodCart/internal/cart"
	"FoodCart/internal/session"
)

type Food struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
	Available   bool            `json:"available"`
}

// Product copies the catalog fields a cart line keeps.
func (f Food) Product() cart.Product {
	return cart.Product{ID: f.ID, Name: f.Name, Price: f.Price, Image: f.Image}
}

type OrderItem struct {
	FoodID   string          `json:"foodId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Options  cart.Options    `json:"options,omitempty"`
}

type OrderRequest struct {
	Items           []OrderItem     `json:"items"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Phone           string          `json:"phone,omitempty"`
	PaymentMethod   string          `json:"paymentMethod"`
	Note            string          `json:"note,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Items           []OrderItem     `json:"items"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	DeliveryAddress string          `json:"deliveryAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentURL      string          `json:"paymentUrl,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (c *Client) ListFoods(ctx context.Context) ([]Food, error) {
	var out []Food
	if err := c.Do(ctx, http.MethodGet, "/foods", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetFood(ctx context.Context, id string) (Food, error) {
	var f Food
	if err := c.Do(ctx, http.MethodGet, "/foods/"+url.PathEscape(id), nil, &f); err != nil {
		return Food{}, err
	}
	return f, nil
}

func (c *Client) Me(ctx context.Context) (session.Profile, error) {
	var p session.Profile
	if err := c.Do(ctx, http.MethodGet, "/users/me", nil, &p); err != nil {
		return session.Profile{}, err
	}
	return p, nil
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var o Order
	if err := c.Do(ctx, http.MethodPost, "/orders", req, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}
