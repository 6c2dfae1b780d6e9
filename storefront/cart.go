package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/optimist"
)

// Cart is the cart view-model for all users, one cache entry per user.
type Cart struct {
	cache   optimist.Cache[CartItem]
	backend CartBackend
	notify  optimist.NotificationSink
	set     settings
}

func cartID(it CartItem) string { return it.ProductID }

// CartOptions fills the item-level cache options for carts: identity by
// product, quantities summed on re-add, deep copies of Product.
func CartOptions(opts optimist.Options[CartItem]) optimist.Options[CartItem] {
	opts.ID = cartID
	opts.Merge = func(existing, incoming CartItem) CartItem {
		existing.Quantity += incoming.Quantity
		if existing.Product == nil {
			existing.Product = incoming.Product
		}
		return existing
	}
	opts.Clone = func(it CartItem) CartItem {
		it.Product = cloneProduct(it.Product)
		return it
	}
	return opts
}

// NewCart builds the cart cache from opts (see CartOptions) and binds it to backend.
func NewCart(backend CartBackend, opts optimist.Options[CartItem], o ...Option) (*Cart, error) {
	c := &Cart{backend: backend, notify: opts.Notify, set: newSettings(o)}
	opts = CartOptions(opts)
	if opts.Describe == nil {
		opts.Describe = c.describe
	}
	cache, err := optimist.New(opts)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

func (c *Cart) key(s Session) string { return optimist.Key(CartCollection, s.UserID) }

func (c *Cart) fetcher(s Session) optimist.Fetcher[CartItem] {
	return wrapFetch(c.set, func(ctx context.Context, _ string) ([]CartItem, error) {
		if !s.Authenticated() {
			return nil, ErrNotAuthenticated
		}
		return c.backend.ListCart(ctx, s)
	})
}

// Items returns the cached cart, refreshing it in the background when stale.
func (c *Cart) Items(ctx context.Context, s Session, opts ...optimist.GetOption) optimist.Entry[CartItem] {
	if !s.Authenticated() {
		return optimist.Entry[CartItem]{Key: c.key(s), Status: optimist.StatusEmpty}
	}
	return c.cache.Get(ctx, c.key(s), c.fetcher(s), opts...)
}

// Load waits for the cart to be fetched.
func (c *Cart) Load(ctx context.Context, s Session) (optimist.Entry[CartItem], error) {
	if !s.Authenticated() {
		return optimist.Entry[CartItem]{Key: c.key(s)}, ErrNotAuthenticated
	}
	return c.cache.Load(ctx, c.key(s), c.fetcher(s))
}

// Add puts quantity units of p in the cart, merging with an existing row.
func (c *Cart) Add(ctx context.Context, s Session, p Product, quantity int) (CartItem, error) {
	if err := c.authorize(s, "Please log in to add items to cart"); err != nil {
		return CartItem{}, err
	}
	if err := check(addToCartInput{ProductID: p.ID, Quantity: quantity}); err != nil {
		return CartItem{}, err
	}
	item := CartItem{
		UserID:    s.UserID,
		ProductID: p.ID,
		Quantity:  quantity,
		CreatedAt: c.set.now(),
		Product:   cloneProduct(&p),
	}
	return c.cache.Add(ctx, c.key(s), item, wrapCall(c.set, func(ctx context.Context, op optimist.Op[CartItem]) (CartItem, error) {
		return c.backend.AddToCart(ctx, s, op.TargetID, quantity)
	}))
}

// UpdateQuantity sets the quantity of a product already in the cart. A
// quantity of zero or less removes it.
func (c *Cart) UpdateQuantity(ctx context.Context, s Session, productID string, quantity int) (CartItem, error) {
	if err := c.authorize(s, "Please log in to update cart"); err != nil {
		return CartItem{}, err
	}
	if err := check(setQuantityInput{ProductID: productID, Quantity: quantity}); err != nil {
		return CartItem{}, err
	}
	if quantity <= 0 {
		return CartItem{}, c.Remove(ctx, s, productID)
	}
	patch := func(it CartItem) CartItem {
		it.Quantity = quantity
		return it
	}
	return c.cache.Update(ctx, c.key(s), productID, patch, wrapCall(c.set, func(ctx context.Context, op optimist.Op[CartItem]) (CartItem, error) {
		return c.backend.SetCartQuantity(ctx, s, op.TargetID, quantity)
	}))
}

func (c *Cart) Remove(ctx context.Context, s Session, productID string) error {
	if err := c.authorize(s, "Please log in to remove items from cart"); err != nil {
		return err
	}
	if err := check(productInput{ProductID: productID}); err != nil {
		return err
	}
	return c.cache.Remove(ctx, c.key(s), productID, wrapCall(c.set, func(ctx context.Context, op optimist.Op[CartItem]) (CartItem, error) {
		return CartItem{}, c.backend.RemoveFromCart(ctx, s, op.TargetID)
	}))
}

func (c *Cart) Clear(ctx context.Context, s Session) error {
	if err := c.authorize(s, "Please log in to clear cart"); err != nil {
		return err
	}
	return c.cache.Clear(ctx, c.key(s), wrapCall(c.set, func(ctx context.Context, _ optimist.Op[CartItem]) (CartItem, error) {
		return CartItem{}, c.backend.ClearCart(ctx, s)
	}))
}

// Total is the price of the cart as currently shown, pending changes included.
func (c *Cart) Total(s Session) float64 {
	e, _ := c.cache.Peek(c.key(s))
	return Total(e.Items)
}

// Count is the number of units in the cart as currently shown.
func (c *Cart) Count(s Session) int {
	e, _ := c.cache.Peek(c.key(s))
	return Count(e.Items)
}

func (c *Cart) Subscribe(s Session, fn func(optimist.Entry[CartItem])) func() {
	return c.cache.Subscribe(c.key(s), fn)
}

func (c *Cart) Invalidate(s Session) { c.cache.Invalidate(c.key(s)) }

// Logout drops the user's cart and its persisted snapshot.
func (c *Cart) Logout(ctx context.Context, s Session) error {
	return c.cache.Teardown(ctx, c.key(s))
}

func (c *Cart) Close(ctx context.Context) error { return c.cache.Close(ctx) }

func (c *Cart) authorize(s Session, msg string) error {
	if s.Authenticated() {
		return nil
	}
	if c.notify != nil {
		c.notify(optimist.Notification{Kind: optimist.NotifyError, Message: msg, Key: c.key(s), Err: ErrNotAuthenticated})
	}
	return ErrNotAuthenticated
}

func (c *Cart) describe(n optimist.Notification) string {
	if optimist.KindOf(n.Err) == optimist.TooManyPendingMutations {
		return "Too many pending changes, please wait"
	}
	if n.Kind == optimist.NotifyError {
		switch n.Op {
		case optimist.Fetch:
			return "Failed to load cart items"
		case optimist.Add:
			if errors.Is(n.Err, ErrProductNotFound) {
				return "Product not found"
			}
			return "Failed to add item to cart"
		case optimist.Update:
			return "Failed to update quantity"
		case optimist.Remove:
			return "Failed to remove item from cart"
		case optimist.Clear:
			return "Failed to clear cart"
		}
		return optimist.DefaultMessage(n)
	}
	switch n.Op {
	case optimist.Add:
		return fmt.Sprintf("Added %s to cart", c.productName(n.Key, n.TargetID))
	case optimist.Update:
		return "Quantity updated"
	case optimist.Remove:
		return "Item removed from cart"
	case optimist.Clear:
		return "Cart cleared"
	}
	return optimist.DefaultMessage(n)
}

func (c *Cart) productName(key, id string) string {
	e, _ := c.cache.Peek(key)
	if it, ok := e.Find(id, cartID); ok && it.Product != nil && it.Product.Name != "" {
		return it.Product.Name
	}
	return id
}

// Total sums price times quantity. Rows without a product count as zero.
func Total(items []CartItem) float64 {
	var total float64
	for _, it := range items {
		if it.Product != nil {
			total += it.Product.Price * float64(it.Quantity)
		}
	}
	return total
}

// Count sums quantities.
func Count(items []CartItem) int {
	var n int
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
