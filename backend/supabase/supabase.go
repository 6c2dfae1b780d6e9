// Package supabase implements the storefront cart and wishlist backends on
// Supabase's PostgREST API. Tables: products, cart_items, wishlists.
//
// The client authenticates with a service key, so every query filters on the
// session's user_id explicitly.
package supabase

import (
	"context"
	"errors"
	"fmt"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/unkn0wn-root/optimist"
	"github.com/unkn0wn-root/optimist/storefront"
)

const (
	tableProducts = "products"
	tableCart     = "cart_items"
	tableWishlist = "wishlists"

	withProduct = "*,product:products(*)"
)

type Options struct {
	URL    string
	Key    string
	Schema string // "" => public
	Logger optimist.Logger
}

type Backend struct {
	client *supabase.Client
	log    optimist.Logger
}

var (
	_ storefront.CartBackend     = (*Backend)(nil)
	_ storefront.WishlistBackend = (*Backend)(nil)
)

func New(opts Options) (*Backend, error) {
	if opts.URL == "" || opts.Key == "" {
		return nil, errors.New("supabase: URL and Key are required")
	}
	client, err := supabase.NewClient(opts.URL, opts.Key, &supabase.ClientOptions{Schema: opts.Schema})
	if err != nil {
		return nil, fmt.Errorf("supabase: client: %w", err)
	}
	b := &Backend{client: client, log: opts.Logger}
	if b.log == nil {
		b.log = optimist.NopLogger{}
	}
	return b, nil
}

func begin(ctx context.Context, s storefront.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Authenticated() {
		return storefront.ErrNotAuthenticated
	}
	return nil
}

// Product returns one product row.
func (b *Backend) Product(ctx context.Context, id string) (storefront.Product, error) {
	if err := ctx.Err(); err != nil {
		return storefront.Product{}, err
	}
	var rows []storefront.Product
	if _, err := b.client.From(tableProducts).
		Select("*", "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return storefront.Product{}, fmt.Errorf("supabase: product %s: %w", id, err)
	}
	if len(rows) == 0 {
		return storefront.Product{}, storefront.ErrProductNotFound
	}
	return rows[0], nil
}

func (b *Backend) ListCart(ctx context.Context, s storefront.Session) ([]storefront.CartItem, error) {
	if err := begin(ctx, s); err != nil {
		return nil, err
	}
	var rows []storefront.CartItem
	if _, err := b.client.From(tableCart).
		Select(withProduct, "", false).
		Eq("user_id", s.UserID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase: list cart: %w", err)
	}
	return rows, nil
}

func (b *Backend) AddToCart(ctx context.Context, s storefront.Session, productID string, quantity int) (storefront.CartItem, error) {
	if err := begin(ctx, s); err != nil {
		return storefront.CartItem{}, err
	}
	if _, err := b.Product(ctx, productID); err != nil {
		return storefront.CartItem{}, err
	}

	var existing []struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	if _, err := b.client.From(tableCart).
		Select("id,quantity", "", false).
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Limit(1, "").
		ExecuteTo(&existing); err != nil {
		return storefront.CartItem{}, fmt.Errorf("supabase: find cart row: %w", err)
	}

	if len(existing) > 0 {
		row := existing[0]
		if _, _, err := b.client.From(tableCart).
			Update(map[string]any{"quantity": row.Quantity + quantity}, "minimal", "").
			Eq("id", row.ID).
			Execute(); err != nil {
			return storefront.CartItem{}, fmt.Errorf("supabase: update cart row: %w", err)
		}
	} else {
		ins := map[string]any{"product_id": productID, "quantity": quantity, "user_id": s.UserID}
		if _, _, err := b.client.From(tableCart).
			Insert(ins, false, "", "minimal", "").
			Execute(); err != nil {
			return storefront.CartItem{}, fmt.Errorf("supabase: insert cart row: %w", err)
		}
	}
	return b.cartRow(s, productID)
}

func (b *Backend) SetCartQuantity(ctx context.Context, s storefront.Session, productID string, quantity int) (storefront.CartItem, error) {
	if err := begin(ctx, s); err != nil {
		return storefront.CartItem{}, err
	}
	if _, _, err := b.client.From(tableCart).
		Update(map[string]any{"quantity": quantity}, "minimal", "").
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Execute(); err != nil {
		return storefront.CartItem{}, fmt.Errorf("supabase: set quantity: %w", err)
	}
	return b.cartRow(s, productID)
}

func (b *Backend) cartRow(s storefront.Session, productID string) (storefront.CartItem, error) {
	var rows []storefront.CartItem
	if _, err := b.client.From(tableCart).
		Select(withProduct, "", false).
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return storefront.CartItem{}, fmt.Errorf("supabase: read cart row: %w", err)
	}
	if len(rows) == 0 {
		return storefront.CartItem{}, fmt.Errorf("supabase: cart row for %s: %w", productID, storefront.ErrProductNotFound)
	}
	return rows[0], nil
}

func (b *Backend) RemoveFromCart(ctx context.Context, s storefront.Session, productID string) error {
	if err := begin(ctx, s); err != nil {
		return err
	}
	if _, _, err := b.client.From(tableCart).
		Delete("minimal", "").
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Execute(); err != nil {
		return fmt.Errorf("supabase: remove cart row: %w", err)
	}
	return nil
}

func (b *Backend) ClearCart(ctx context.Context, s storefront.Session) error {
	if err := begin(ctx, s); err != nil {
		return err
	}
	if _, _, err := b.client.From(tableCart).
		Delete("minimal", "").
		Eq("user_id", s.UserID).
		Execute(); err != nil {
		return fmt.Errorf("supabase: clear cart: %w", err)
	}
	b.log.Debug("cart cleared", optimist.Fields{"user_id": s.UserID})
	return nil
}

func (b *Backend) ListWishlist(ctx context.Context, s storefront.Session) ([]storefront.WishlistItem, error) {
	if err := begin(ctx, s); err != nil {
		return nil, err
	}
	var rows []storefront.WishlistItem
	if _, err := b.client.From(tableWishlist).
		Select(withProduct, "", false).
		Eq("user_id", s.UserID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supabase: list wishlist: %w", err)
	}
	return rows, nil
}

func (b *Backend) AddToWishlist(ctx context.Context, s storefront.Session, productID string) (storefront.WishlistItem, error) {
	if err := begin(ctx, s); err != nil {
		return storefront.WishlistItem{}, err
	}
	if _, err := b.Product(ctx, productID); err != nil {
		return storefront.WishlistItem{}, err
	}
	in, err := b.InWishlist(ctx, s, productID)
	if err != nil {
		return storefront.WishlistItem{}, err
	}
	if in {
		return storefront.WishlistItem{}, storefront.ErrAlreadyInWishlist
	}

	ins := map[string]any{"product_id": productID, "user_id": s.UserID}
	if _, _, err := b.client.From(tableWishlist).
		Insert(ins, false, "", "minimal", "").
		Execute(); err != nil {
		return storefront.WishlistItem{}, fmt.Errorf("supabase: insert wishlist row: %w", err)
	}

	var rows []storefront.WishlistItem
	if _, err := b.client.From(tableWishlist).
		Select(withProduct, "", false).
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return storefront.WishlistItem{}, fmt.Errorf("supabase: read wishlist row: %w", err)
	}
	if len(rows) == 0 {
		return storefront.WishlistItem{}, fmt.Errorf("supabase: wishlist row for %s vanished after insert", productID)
	}
	return rows[0], nil
}

func (b *Backend) RemoveFromWishlist(ctx context.Context, s storefront.Session, productID string) error {
	if err := begin(ctx, s); err != nil {
		return err
	}
	if _, _, err := b.client.From(tableWishlist).
		Delete("minimal", "").
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Execute(); err != nil {
		return fmt.Errorf("supabase: remove wishlist row: %w", err)
	}
	return nil
}

// InWishlist reports false for a signed-out session.
func (b *Backend) InWishlist(ctx context.Context, s storefront.Session, productID string) (bool, error) {
	if !s.Authenticated() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var rows []struct {
		ID string `json:"id"`
	}
	if _, err := b.client.From(tableWishlist).
		Select("id", "", false).
		Eq("user_id", s.UserID).
		Eq("product_id", productID).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return false, fmt.Errorf("supabase: wishlist lookup: %w", err)
	}
	return len(rows) > 0, nil
}
