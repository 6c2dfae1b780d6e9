// Package storefront provides the cart and wishlist view-models the storefront
// renders. Both sit on an optimist cache scoped by user; the signed-in session
// is passed explicitly to every call.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotAuthenticated  = errors.New("storefront: not authenticated")
	ErrProductNotFound   = errors.New("storefront: product not found")
	ErrAlreadyInWishlist = errors.New("storefront: item already in wishlist")
)

// Collection names used in cache keys.
const (
	CartCollection     = "cart"
	WishlistCollection = "wishlist"
)

// Session identifies the signed-in shopper. A zero UserID means signed out.
type Session struct {
	UserID      string
	AccessToken string
}

func (s Session) Authenticated() bool { return s.UserID != "" }

type Product struct {
	ID          string    `json:"id" cbor:"id" msgpack:"id"`
	Name        string    `json:"name" cbor:"name" msgpack:"name"`
	Description string    `json:"description,omitempty" cbor:"description,omitempty" msgpack:"description,omitempty"`
	Price       float64   `json:"price" cbor:"price" msgpack:"price"`
	Currency    string    `json:"currency,omitempty" cbor:"currency,omitempty" msgpack:"currency,omitempty"`
	Category    string    `json:"category,omitempty" cbor:"category,omitempty" msgpack:"category,omitempty"`
	Image       string    `json:"image,omitempty" cbor:"image,omitempty" msgpack:"image,omitempty"`
	Stock       int       `json:"stock" cbor:"stock" msgpack:"stock"`
	Featured    bool      `json:"featured,omitempty" cbor:"featured,omitempty" msgpack:"featured,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty" cbor:"created_at,omitempty" msgpack:"created_at,omitempty"`
}

// CartItem is one cart row. Items are identified by ProductID: a product
// appears in a cart at most once.
type CartItem struct {
	ID        string    `json:"id" cbor:"id" msgpack:"id"`
	UserID    string    `json:"user_id" cbor:"user_id" msgpack:"user_id"`
	ProductID string    `json:"product_id" cbor:"product_id" msgpack:"product_id"`
	Quantity  int       `json:"quantity" cbor:"quantity" msgpack:"quantity"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at" msgpack:"created_at"`
	Product   *Product  `json:"product,omitempty" cbor:"product,omitempty" msgpack:"product,omitempty"`
}

type WishlistItem struct {
	ID        string    `json:"id" cbor:"id" msgpack:"id"`
	UserID    string    `json:"user_id" cbor:"user_id" msgpack:"user_id"`
	ProductID string    `json:"product_id" cbor:"product_id" msgpack:"product_id"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at" msgpack:"created_at"`
	Product   *Product  `json:"product,omitempty" cbor:"product,omitempty" msgpack:"product,omitempty"`
}

// CartBackend is the authoritative cart store. Every method acts on the rows
// of s.UserID and must return ErrNotAuthenticated for a signed-out session.
type CartBackend interface {
	ListCart(ctx context.Context, s Session) ([]CartItem, error)
	// AddToCart inserts the product or increments the existing row by quantity.
	AddToCart(ctx context.Context, s Session, productID string, quantity int) (CartItem, error)
	SetCartQuantity(ctx context.Context, s Session, productID string, quantity int) (CartItem, error)
	RemoveFromCart(ctx context.Context, s Session, productID string) error
	ClearCart(ctx context.Context, s Session) error
}

type WishlistBackend interface {
	ListWishlist(ctx context.Context, s Session) ([]WishlistItem, error)
	// AddToWishlist returns ErrAlreadyInWishlist when the product is already there.
	AddToWishlist(ctx context.Context, s Session, productID string) (WishlistItem, error)
	RemoveFromWishlist(ctx context.Context, s Session, productID string) error
	InWishlist(ctx context.Context, s Session, productID string) (bool, error)
}

func cloneProduct(p *Product) *Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type addToCartInput struct {
	ProductID string `validate:"required"`
	Name      string
	Quantity  int `validate:"gte=1,lte=99"`
}

type setQuantityInput struct {
	ProductID string `validate:"required"`
	Quantity  int    `validate:"lte=99"`
}

type productInput struct {
	ProductID string `validate:"required"`
}

// ValidationError reports invalid arguments. It never reaches the cache.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "storefront: " + strings.Join(msgs, "; ")
}

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return &ValidationError{Errors: ve}
		}
		return err
	}
	return nil
}
