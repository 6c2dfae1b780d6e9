package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/optimist/storefront"
)

// fakeREST is a small PostgREST stand-in: eq filters, limit, and the
// product:products(*) embed.
type fakeREST struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	seq    int
	fail   string // table that answers 500
	reqs   []string
}

func newFakeREST() *fakeREST {
	return &fakeREST{tables: map[string][]map[string]any{
		tableProducts: {
			{"id": "p1", "name": "Classic Running Shoes", "price": 120.0, "stock": 4},
			{"id": "p2", "name": "Cotton Tee", "price": 25.5, "stock": 10},
		},
		tableCart:     {},
		tableWishlist: {},
	}}
}

var reserved = map[string]bool{"select": true, "order": true, "limit": true, "offset": true, "columns": true, "on_conflict": true}

func (f *fakeREST) match(row map[string]any, q map[string][]string) bool {
	for k, vs := range q {
		if reserved[k] || len(vs) == 0 {
			continue
		}
		want, ok := strings.CutPrefix(vs[0], "eq.")
		if !ok || fmt.Sprint(row[k]) != want {
			return false
		}
	}
	return true
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := path.Base(r.URL.Path)
	q := r.URL.Query()
	f.reqs = append(f.reqs, r.Method+" "+table)
	w.Header().Set("Content-Type", "application/json")

	if table == f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"XX000","message":"boom","details":"","hint":""}`))
		return
	}
	switch r.Method {
	case http.MethodGet:
		out := []map[string]any{}
		for _, row := range f.tables[table] {
			if !f.match(row, q) {
				continue
			}
			cp := map[string]any{}
			for k, v := range row {
				cp[k] = v
			}
			if strings.Contains(q.Get("select"), "product:products") {
				for _, p := range f.tables[tableProducts] {
					if p["id"] == row["product_id"] {
						cp["product"] = p
					}
				}
			}
			out = append(out, cp)
			if q.Get("limit") == "1" {
				break
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.seq++
		row["id"] = fmt.Sprintf("row-%d", f.seq)
		row["created_at"] = time.Date(2024, 1, 2, 3, 4, f.seq, 0, time.UTC).Format(time.RFC3339Nano)
		f.tables[table] = append(f.tables[table], row)
		w.WriteHeader(http.StatusCreated)
	case http.MethodPatch:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, row := range f.tables[table] {
			if f.match(row, q) {
				for k, v := range patch {
					row[k] = v
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		kept := f.tables[table][:0]
		for _, row := range f.tables[table] {
			if !f.match(row, q) {
				kept = append(kept, row)
			}
		}
		f.tables[table] = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newBackend(t *testing.T) (*Backend, *fakeREST) {
	t.Helper()
	fake := newFakeREST()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	b, err := New(Options{URL: srv.URL, Key: "service-key"})
	require.NoError(t, err)
	return b, fake
}

var alice = storefront.Session{UserID: "u1"}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(Options{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestCartRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, fake := newBackend(t)

	it, err := b.AddToCart(ctx, alice, "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, it.Quantity)
	require.NotNil(t, it.Product)
	assert.Equal(t, "Classic Running Shoes", it.Product.Name)

	it, err = b.AddToCart(ctx, alice, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, it.Quantity, "re-add increments the existing row")

	_, err = b.AddToCart(ctx, alice, "p2", 1)
	require.NoError(t, err)

	items, err := b.ListCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.InDelta(t, 3*120+25.5, storefront.Total(items), 1e-9)

	it, err = b.SetCartQuantity(ctx, alice, "p2", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity)

	require.NoError(t, b.RemoveFromCart(ctx, alice, "p1"))
	items, err = b.ListCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].ProductID)

	require.NoError(t, b.ClearCart(ctx, alice))
	assert.Empty(t, fake.tables[tableCart])
}

func TestCartIsScopedToUser(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)

	_, err := b.AddToCart(ctx, alice, "p1", 1)
	require.NoError(t, err)

	bob := storefront.Session{UserID: "u2"}
	items, err := b.ListCart(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddUnknownProduct(t *testing.T) {
	b, _ := newBackend(t)
	_, err := b.AddToCart(context.Background(), alice, "nope", 1)
	assert.ErrorIs(t, err, storefront.ErrProductNotFound)
	_, err = b.AddToWishlist(context.Background(), alice, "nope")
	assert.ErrorIs(t, err, storefront.ErrProductNotFound)
}

func TestSignedOutSession(t *testing.T) {
	ctx := context.Background()
	b, fake := newBackend(t)

	_, err := b.ListCart(ctx, storefront.Session{})
	assert.ErrorIs(t, err, storefront.ErrNotAuthenticated)
	ok, err := b.InWishlist(ctx, storefront.Session{}, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fake.reqs)
}

func TestWishlist(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t)

	it, err := b.AddToWishlist(ctx, alice, "p2")
	require.NoError(t, err)
	assert.Equal(t, "p2", it.ProductID)
	require.NotNil(t, it.Product)

	_, err = b.AddToWishlist(ctx, alice, "p2")
	assert.ErrorIs(t, err, storefront.ErrAlreadyInWishlist)

	ok, err := b.InWishlist(ctx, alice, "p2")
	require.NoError(t, err)
	assert.True(t, ok)

	items, err := b.ListWishlist(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, b.RemoveFromWishlist(ctx, alice, "p2"))
	ok, err = b.InWishlist(ctx, alice, "p2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerErrorsSurface(t *testing.T) {
	b, fake := newBackend(t)
	fake.fail = tableCart

	_, err := b.ListCart(context.Background(), alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list cart")
}

func TestCancelledContext(t *testing.T) {
	b, fake := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.ClearCart(ctx, alice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.reqs)
}
