package shop

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"FoodCart/internal/api"
	"FoodCart/internal/cart"
	"FoodCart/internal/checkout"
	"FoodCart/internal/kv"
	"FoodCart/internal/session"
	"FoodCart/pkg/kit"
)

const (
	readyTimeout   = 1 * time.Second
	profileTimeout = 3 * time.Second
)

type Catalog interface {
	ListFoods(ctx context.Context) ([]api.Food, error)
	GetFood(ctx context.Context, id string) (api.Food, error)
	Me(ctx context.Context) (session.Profile, error)
}

type Server struct {
	Cart     *cart.Store
	Session  *session.Store
	Checkout *checkout.Service
	Catalog  Catalog
	KV       kv.Store
	Log      *zap.Logger
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.KV.Ping(ctx); err != nil {
		s.Log.Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type cartView struct {
	Items         []cart.LineItem `json:"items"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	TotalQuantity int             `json:"totalQuantity"`
}

func (s *Server) view() cartView {
	return cartView{
		Items:         s.Cart.Items(),
		TotalPrice:    s.Cart.TotalPrice(),
		TotalQuantity: s.Cart.TotalQuantity(),
	}
}

func (s *Server) handleGetCart(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleClearCart(w http.ResponseWriter, _ *http.Request) {
	s.Cart.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type addItemReq struct {
	Product   *cart.Product `json:"product,omitempty"`
	ProductID string        `json:"productId,omitempty"`
	Quantity  *int          `json:"quantity,omitempty"`
	Options   cart.Options  `json:"options,omitempty"`
}

// handleAddItem accepts either the product data the UI already shows, or a
// productId to look up in the catalog.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	var p cart.Product
	switch {
	case req.Product != nil:
		p = *req.Product
	case strings.TrimSpace(req.ProductID) != "":
		f, err := s.Catalog.GetFood(r.Context(), strings.TrimSpace(req.ProductID))
		if err != nil {
			s.writeAPIError(w, r, err)
			return
		}
		if !f.Available {
			kit.WriteError(w, r, http.StatusConflict, "food unavailable", map[string]any{"id": f.ID})
			return
		}
		p = f.Product()
	default:
		kit.WriteError(w, r, http.StatusBadRequest, "product or productId required", nil)
		return
	}

	it, err := s.Cart.AddItem(p, qty, req.Options)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, it)
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateItemReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	switch err := s.Cart.SetQuantity(id, req.Quantity); {
	case errors.Is(err, cart.ErrItemNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	case errors.Is(err, cart.ErrInvalidQuantity):
		kit.WriteError(w, r, http.StatusConflict, "quantity must be at least 1; remove the item instead",
			map[string]any{"id": id, "quantity": req.Quantity})
		return
	case err != nil:
		s.Log.Error("update quantity failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	it, ok := s.Cart.Item(id)
	if !ok {
		// Removed right after the update.
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s.Cart.RemoveItem(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var d checkout.Details
	if err := kit.DecodeJSON(w, r, &d); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	o, err := s.Checkout.Submit(r.Context(), d)
	if err != nil {
		s.writeCheckoutError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, o)
}

func (s *Server) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrAddress), errors.Is(err, checkout.ErrPaymentMethod):
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, checkout.ErrEmptyCart):
		kit.WriteError(w, r, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, checkout.ErrSubmitFailed):
		s.writeAPIError(w, r, err)
	default:
		s.Log.Error("checkout failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func (s *Server) handleListFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := s.Catalog.ListFoods(r.Context())
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	if foods == nil {
		foods = []api.Food{}
	}
	kit.WriteJSON(w, http.StatusOK, foods)
}

func (s *Server) handleGetFood(w http.ResponseWriter, r *http.Request) {
	f, err := s.Catalog.GetFood(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, api.ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "not found", nil)
	case errors.Is(err, api.ErrUnauthorized):
		kit.WriteError(w, r, http.StatusUnauthorized, "unauthorized", nil)
	case errors.Is(err, api.ErrUnavailable):
		kit.WriteError(w, r, http.StatusServiceUnavailable, "backend unavailable", nil)
	default:
		s.Log.Warn("backend error", zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "backend error", nil)
	}
}

type sessionView struct {
	UserID    string           `json:"userId"`
	Role      string           `json:"role,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	User      *session.Profile `json:"user,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c, err := s.Session.Claims(r.Context())
	if err != nil {
		kit.WriteError(w, r, http.StatusUnauthorized, "no session", nil)
		return
	}

	v := sessionView{UserID: c.UserID, Role: c.Role}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		v.ExpiresAt = &exp
	}
	if p, ok := s.Session.User(r.Context()); ok {
		v.User = &p
	}
	kit.WriteJSON(w, http.StatusOK, v)
}

type putSessionReq struct {
	Token string `json:"token"`
}

func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var req putSessionReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if err := s.Session.SetToken(r.Context(), req.Token); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid token", nil)
		return
	}

	// The profile cache is best effort; the token alone is a valid session.
	ctx, cancel := context.WithTimeout(r.Context(), profileTimeout)
	defer cancel()
	if p, err := s.Catalog.Me(ctx); err != nil {
		s.Log.Warn("profile fetch failed", zap.Error(err))
	} else if err := s.Session.SetUser(ctx, p); err != nil {
		s.Log.Warn("profile cache write failed", zap.Error(err))
	}

	s.handleGetSession(w, r)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Session.Logout(r.Context()); err != nil {
		s.Log.Error("logout failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, s.Session.Preferences(r.Context()))
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	p := s.Session.Preferences(r.Context())
	if err := kit.DecodeJSON(w, r, &p); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if err := s.Session.SetPreferences(r.Context(), p); err != nil {
		s.Log.Error("preferences write failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}
