package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be a positive integer")
	ErrInvalidProduct  = errors.New("cart: product requires id, name and a non-negative price")
	ErrInvalidOptions  = errors.New("cart: options are not encodable")
	ErrItemNotFound    = errors.New("cart: no line with that id")
)

// Product is the catalog data copied into a line item when it is added.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// UnmarshalJSON accepts the catalog's "productId" as well as "id".
func (p *Product) UnmarshalJSON(b []byte) error {
	type product Product
	var raw struct {
		product
		ProductID string `json:"productId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Product(raw.product)
	if p.ID == "" {
		p.ID = raw.ProductID
	}
	return nil
}

func (p Product) validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" || p.Price.IsNegative() {
		return ErrInvalidProduct
	}
	return nil
}

// Options are the customer's selections for a product (size, toppings...).
// Two option sets are the same selection when they hold the same keys with
// the same values, regardless of insertion order.
type Options map[string]any

// Equal reports structural equality. A nil set equals an empty one.
func (o Options) Equal(other Options) bool {
	a, errA := o.canonical()
	b, errB := other.canonical()
	return errA == nil && errB == nil && a == b
}

// canonical renders the options as JSON. encoding/json sorts map keys at
// every level, so equal selections render identically, including after a
// round trip through storage turns ints into float64s.
func (o Options) canonical() (string, error) {
	if len(o) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(o))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// normalize returns a private copy of the options in the shape they take
// after a trip through storage: nested maps become map[string]any, slices
// become []any and numbers become float64. Nothing in the copy is shared
// with the caller.
func (o Options) normalize() (Options, error) {
	if len(o) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(o))
	if err != nil {
		return nil, err
	}
	var out Options
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// clone deep-copies normalized options.
func (o Options) clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Options(t).clone())
	case Options:
		return t.clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

type LineItem struct {
	CartItemID string          `json:"cartItemId"`
	ProductID  string          `json:"productId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"image,omitempty"`
	Quantity   int             `json:"quantity"`
	Options    Options         `json:"options,omitempty"`
}

// Subtotal is price * quantity for this line.
func (it LineItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func (it LineItem) clone() LineItem {
	it.Options = it.Options.clone()
	return it
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}

// validateSnapshot rejects hydrated data that could not have been produced
// by the store itself.
func validateSnapshot(items []LineItem) error {
	ids := make(map[string]struct{}, len(items))
	identities := make(map[string]struct{}, len(items))
	units := 0

	for i, it := range items {
		if strings.TrimSpace(it.CartItemID) == "" || strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("item %d: missing identifier", i)
		}
		if it.Quantity < 1 || units > math.MaxInt-it.Quantity {
			return fmt.Errorf("item %d: quantity %d", i, it.Quantity)
		}
		units += it.Quantity
		if it.Price.IsNegative() {
			return fmt.Errorf("item %d: negative price", i)
		}
		if _, dup := ids[it.CartItemID]; dup {
			return fmt.Errorf("item %d: duplicate cartItemId %q", i, it.CartItemID)
		}
		ids[it.CartItemID] = struct{}{}

		opts, err := it.Options.canonical()
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		identity := it.ProductID + "\x00" + opts
		if _, dup := identities[identity]; dup {
			return fmt.Errorf("item %d: duplicate product/options pair", i)
		}
		identities[identity] = struct{}{}
	}
	return nil
}
