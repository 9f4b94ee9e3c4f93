package shop_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"FoodCart/internal/api"
	"FoodCart/internal/cart"
	"FoodCart/internal/checkout"
	"FoodCart/internal/kv"
	"FoodCart/internal/session"
	"FoodCart/internal/shop"
)

type backend struct {
	mu     sync.Mutex
	orders []api.OrderRequest
	auth   []string
}

func newBackendTS(t *testing.T, b *backend) *httptest.Server {
	t.Helper()

	foods := map[string]api.Food{
		"1": {ID: "1", Name: "Pho", Price: decimal.NewFromInt(50000), Available: true},
		"2": {ID: "2", Name: "Bun Cha", Price: decimal.NewFromInt(45000), Available: true},
		"9": {ID: "9", Name: "Banh Xeo", Price: decimal.NewFromInt(30000), Available: false},
	}

	r := chi.NewRouter()
	r.Get("/foods", func(w http.ResponseWriter, _ *http.Request) {
		out := []api.Food{foods["1"], foods["2"]}
		_ = json.NewEncoder(w).Encode(out)
	})
	r.Get("/foods/{id}", func(w http.ResponseWriter, r *http.Request) {
		f, ok := foods[chi.URLParam(r, "id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(f)
	})
	r.Get("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(session.Profile{ID: "u_1", Name: "Lan", Email: "lan@example.com"})
	})
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req api.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.orders = append(b.orders, req)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.Order{ID: "o_1", Status: "pending", Items: req.Items, TotalPrice: req.TotalPrice})
	})

	return httptest.NewServer(r)
}

type shopEnv struct {
	ts    *httptest.Server
	store *kv.MemStore
	cart  *cart.Store
}

func newShopTS(t *testing.T, backendURL string, store *kv.MemStore, deps shop.HTTPDeps) shopEnv {
	t.Helper()

	sess := session.New(store, zap.NewNop())
	client := api.NewClient(backendURL, sess)

	c := cart.New(store)
	c.Initialize()

	s := &shop.Server{
		Cart:     c,
		Session:  sess,
		Checkout: &checkout.Service{Cart: c, Orders: client},
		Catalog:  client,
		KV:       store,
	}

	deps.Log = zap.NewNop()
	deps.Service = "cart"

	ts := httptest.NewServer(shop.NewHandler(s, deps))
	t.Cleanup(ts.Close)
	return shopEnv{ts: ts, store: store, cart: c}
}

func newToken(t *testing.T) string {
	t.Helper()

	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
		UserID: "u_1",
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

type cartBody struct {
	Items         []cart.LineItem `json:"items"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	TotalQuantity int             `json:"totalQuantity"`
}

func getCart(t *testing.T, c *http.Client, base string) cartBody {
	t.Helper()

	resp, raw := doJSON(t, c, http.MethodGet, base+"/cart", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get cart status=%d body=%s", resp.StatusCode, raw)
	}
	var cb cartBody
	if err := json.Unmarshal(raw, &cb); err != nil {
		t.Fatalf("decode cart: %v body=%s", err, raw)
	}
	return cb
}

func TestShop_PublicAPI_HappyPath(t *testing.T) {
	be := &backend{}
	backendTS := newBackendTS(t, be)
	t.Cleanup(backendTS.Close)

	env := newShopTS(t, backendTS.URL, kv.NewMemStore(), shop.HTTPDeps{})
	base := env.ts.URL
	c := &http.Client{}

	{
		resp, raw := doJSON(t, c, http.MethodPut, base+"/session", map[string]any{"token": newToken(t)}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("put session status=%d body=%s", resp.StatusCode, raw)
		}
		if !strings.Contains(string(raw), `"name":"Lan"`) {
			t.Fatalf("profile not cached: %s", raw)
		}
	}

	var first cart.LineItem
	{
		resp, raw := doJSON(t, c, http.MethodPost, base+"/cart/items", map[string]any{"productId": "1", "quantity": 2}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add status=%d body=%s", resp.StatusCode, raw)
		}
		if err := json.Unmarshal(raw, &first); err != nil {
			t.Fatalf("decode item: %v", err)
		}

		resp, raw = doJSON(t, c, http.MethodPost, base+"/cart/items", map[string]any{
			"product": map[string]any{"id": "1", "name": "Pho", "price": 50000},
		}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add status=%d body=%s", resp.StatusCode, raw)
		}

		cb := getCart(t, c, base)
		if len(cb.Items) != 1 || cb.Items[0].Quantity != 3 || !cb.TotalPrice.Equal(decimal.NewFromInt(150000)) {
			t.Fatalf("cart after merge=%+v", cb)
		}
	}

	var large cart.LineItem
	{
		resp, raw := doJSON(t, c, http.MethodPost, base+"/cart/items", map[string]any{
			"productId": "1",
			"options":   map[string]any{"size": "L"},
		}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add status=%d body=%s", resp.StatusCode, raw)
		}
		_ = json.Unmarshal(raw, &large)
		if large.CartItemID == first.CartItemID {
			t.Fatalf("options did not create a distinct line")
		}
	}

	{
		resp, _ := doJSON(t, c, http.MethodPatch, base+"/cart/items/"+first.CartItemID, map[string]any{"quantity": 0}, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("patch 0 status=%d", resp.StatusCode)
		}
		resp, _ = doJSON(t, c, http.MethodPatch, base+"/cart/items/ci_missing", map[string]any{"quantity": 2}, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("patch missing status=%d", resp.StatusCode)
		}

		for i := 0; i < 2; i++ {
			resp, _ = doJSON(t, c, http.MethodDelete, base+"/cart/items/"+large.CartItemID, nil, nil)
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("delete #%d status=%d", i, resp.StatusCode)
			}
		}

		cb := getCart(t, c, base)
		if len(cb.Items) != 1 || cb.TotalQuantity != 3 {
			t.Fatalf("cart=%+v", cb)
		}
	}

	{
		resp, raw := doJSON(t, c, http.MethodPost, base+"/checkout", map[string]any{
			"deliveryAddress": "12 Ly Thuong Kiet",
			"paymentMethod":   "cod",
		}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("checkout status=%d body=%s", resp.StatusCode, raw)
		}

		be.mu.Lock()
		orders, auth := be.orders, be.auth
		be.mu.Unlock()

		if len(orders) != 1 {
			t.Fatalf("orders=%d", len(orders))
		}
		if !strings.HasPrefix(auth[0], "Bearer ") {
			t.Fatalf("order submitted without bearer token")
		}
		o := orders[0]
		if len(o.Items) != 1 || o.Items[0].FoodID != "1" || o.Items[0].Quantity != 3 {
			t.Fatalf("order items=%+v", o.Items)
		}
	}

	if cb := getCart(t, c, base); len(cb.Items) != 0 {
		t.Fatalf("cart not cleared after checkout: %+v", cb)
	}
	if _, ok, _ := env.store.Get(context.Background(), kv.KeyCart); ok {
		t.Fatalf("persisted cart not removed after checkout")
	}
}

func TestShop_PublicAPI_CartSurvivesRestart(t *testing.T) {
	backendTS := newBackendTS(t, &backend{})
	t.Cleanup(backendTS.Close)

	store := kv.NewMemStore()
	c := &http.Client{}

	first := newShopTS(t, backendTS.URL, store, shop.HTTPDeps{})
	doJSON(t, c, http.MethodPost, first.ts.URL+"/cart/items", map[string]any{"productId": "1", "quantity": 2}, nil)
	doJSON(t, c, http.MethodPost, first.ts.URL+"/cart/items", map[string]any{"productId": "2", "options": map[string]any{"rice": "extra"}}, nil)
	want := getCart(t, c, first.ts.URL)

	second := newShopTS(t, backendTS.URL, store, shop.HTTPDeps{})
	got := getCart(t, c, second.ts.URL)

	if len(got.Items) != len(want.Items) || got.TotalQuantity != want.TotalQuantity || !got.TotalPrice.Equal(want.TotalPrice) {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	for i := range want.Items {
		if got.Items[i].CartItemID != want.Items[i].CartItemID || !got.Items[i].Options.Equal(want.Items[i].Options) {
			t.Fatalf("item %d got=%+v want=%+v", i, got.Items[i], want.Items[i])
		}
	}
}

func TestShop_PublicAPI_Errors(t *testing.T) {
	backendTS := newBackendTS(t, &backend{})
	t.Cleanup(backendTS.Close)

	env := newShopTS(t, backendTS.URL, kv.NewMemStore(), shop.HTTPDeps{})
	base := env.ts.URL
	c := &http.Client{}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty checkout", http.MethodPost, "/checkout", map[string]any{"deliveryAddress": "x", "paymentMethod": "cod"}, http.StatusConflict},
		{"bad payment", http.MethodPost, "/checkout", map[string]any{"deliveryAddress": "x", "paymentMethod": "iou"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/cart/items", map[string]any{"productId": "1", "qty": 2}, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, "/cart/items", map[string]any{"productId": "1", "quantity": 0}, http.StatusBadRequest},
		{"no product", http.MethodPost, "/cart/items", map[string]any{"quantity": 1}, http.StatusBadRequest},
		{"unknown food", http.MethodPost, "/cart/items", map[string]any{"productId": "404"}, http.StatusNotFound},
		{"unavailable food", http.MethodPost, "/cart/items", map[string]any{"productId": "9"}, http.StatusConflict},
		{"no session", http.MethodGet, "/session", nil, http.StatusUnauthorized},
		{"bad token", http.MethodPut, "/session", map[string]any{"token": "nope"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := doJSON(t, c, tc.method, base+tc.path, tc.body, nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("status=%d want=%d body=%s", resp.StatusCode, tc.want, raw)
			}
		})
	}

	if cb := getCart(t, c, base); len(cb.Items) != 0 {
		t.Fatalf("rejected requests changed the cart: %+v", cb)
	}
}

func TestShop_PublicAPI_ProductKeysAndQuantity(t *testing.T) {
	backendTS := newBackendTS(t, &backend{})
	t.Cleanup(backendTS.Close)

	env := newShopTS(t, backendTS.URL, kv.NewMemStore(), shop.HTTPDeps{})
	base := env.ts.URL
	c := &http.Client{}

	var lines []cart.LineItem
	for _, p := range []map[string]any{
		{"id": "1", "name": "Pho", "price": 50000},
		{"productId": "1", "name": "Pho", "price": 50000},
		{"productId": "2", "name": "Bun Cha", "price": "45000"},
	} {
		resp, raw := doJSON(t, c, http.MethodPost, base+"/cart/items", map[string]any{"product": p}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add %v status=%d body=%s", p, resp.StatusCode, raw)
		}
		var it cart.LineItem
		if err := json.Unmarshal(raw, &it); err != nil {
			t.Fatalf("decode item: %v", err)
		}
		lines = append(lines, it)
	}
	if lines[0].CartItemID != lines[1].CartItemID || lines[1].Quantity != 2 {
		t.Fatalf("productId and id keys did not merge: %+v", lines)
	}
	if lines[2].ProductID != "2" {
		t.Fatalf("productId not read: %+v", lines[2])
	}

	pho, bun := lines[0].CartItemID, lines[2].CartItemID
	resp, raw := doJSON(t, c, http.MethodPatch, base+"/cart/items/"+pho, map[string]any{"quantity": math.MaxInt - 1}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", resp.StatusCode, raw)
	}
	resp, _ = doJSON(t, c, http.MethodPatch, base+"/cart/items/"+bun, map[string]any{"quantity": math.MaxInt}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("overflowing patch status=%d", resp.StatusCode)
	}
	if cb := getCart(t, c, base); cb.TotalQuantity != math.MaxInt {
		t.Fatalf("totalQuantity=%d", cb.TotalQuantity)
	}

	doJSON(t, c, http.MethodDelete, base+"/cart/items/"+bun, nil, nil)
	resp, _ = doJSON(t, c, http.MethodPatch, base+"/cart/items/"+bun, map[string]any{"quantity": 0}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("patch of removed line status=%d", resp.StatusCode)
	}
}

func TestShop_PublicAPI_BackendDown(t *testing.T) {
	backendTS := newBackendTS(t, &backend{})
	url := backendTS.URL
	backendTS.Close()

	env := newShopTS(t, url, kv.NewMemStore(), shop.HTTPDeps{})
	c := &http.Client{}

	doJSON(t, c, http.MethodPost, env.ts.URL+"/cart/items", map[string]any{
		"product": map[string]any{"id": "1", "name": "Pho", "price": "50000"},
	}, nil)

	resp, raw := doJSON(t, c, http.MethodPost, env.ts.URL+"/checkout", map[string]any{
		"deliveryAddress": "x",
		"paymentMethod":   "momo",
	}, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	if env.cart.Len() != 1 {
		t.Fatalf("cart changed after failed checkout")
	}
}

func TestShop_PublicAPI_Preferences(t *testing.T) {
	backendTS := newBackendTS(t, &backend{})
	t.Cleanup(backendTS.Close)

	env := newShopTS(t, backendTS.URL, kv.NewMemStore(), shop.HTTPDeps{})
	c := &http.Client{}

	resp, raw := doJSON(t, c, http.MethodPut, env.ts.URL+"/preferences", map[string]any{"theme": "dark"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}

	var p session.Preferences
	_, raw = doJSON(t, c, http.MethodGet, env.ts.URL+"/preferences", nil, nil)
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := session.Preferences{NotificationsEnabled: true, Theme: "dark", Language: "vi"}
	if p != want {
		t.Fatalf("prefs=%+v want=%+v", p, want)
	}
}

func TestShop_PublicAPI_MetricsRequireToken(t *testing.T) {
	backendTS := newBackendTS(t, &backend{})
	t.Cleanup(backendTS.Close)

	env := newShopTS(t, backendTS.URL, kv.NewMemStore(), shop.HTTPDeps{
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: true,
		MetricsToken:   "metrics-secret",
	})
	c := &http.Client{}

	getCart(t, c, env.ts.URL)

	resp, _ := doJSON(t, c, http.MethodGet, env.ts.URL+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d without token", resp.StatusCode)
	}

	resp, raw := doJSON(t, c, http.MethodGet, env.ts.URL+"/metrics", nil, map[string]string{
		"Authorization": "Bearer metrics-secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d with token", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "http_requests_total{") || !strings.Contains(string(raw), `service="cart"`) {
		t.Fatalf("request metric missing:\n%s", raw)
	}
}
