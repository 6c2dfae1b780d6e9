package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/optimist"
)

// Wishlist is the wishlist view-model. Adding a product that is already
// listed changes nothing locally; the backend decides.
type Wishlist struct {
	cache   optimist.Cache[WishlistItem]
	backend WishlistBackend
	notify  optimist.NotificationSink
	set     settings
}

func wishlistID(it WishlistItem) string { return it.ProductID }

func WishlistOptions(opts optimist.Options[WishlistItem]) optimist.Options[WishlistItem] {
	opts.ID = wishlistID
	opts.Merge = nil
	opts.Clone = func(it WishlistItem) WishlistItem {
		it.Product = cloneProduct(it.Product)
		return it
	}
	return opts
}

func NewWishlist(backend WishlistBackend, opts optimist.Options[WishlistItem], o ...Option) (*Wishlist, error) {
	w := &Wishlist{backend: backend, notify: opts.Notify, set: newSettings(o)}
	opts = WishlistOptions(opts)
	if opts.Describe == nil {
		opts.Describe = w.describe
	}
	cache, err := optimist.New(opts)
	if err != nil {
		return nil, err
	}
	w.cache = cache
	return w, nil
}

func (w *Wishlist) key(s Session) string { return optimist.Key(WishlistCollection, s.UserID) }

func (w *Wishlist) fetcher(s Session) optimist.Fetcher[WishlistItem] {
	return wrapFetch(w.set, func(ctx context.Context, _ string) ([]WishlistItem, error) {
		if !s.Authenticated() {
			return nil, ErrNotAuthenticated
		}
		return w.backend.ListWishlist(ctx, s)
	})
}

func (w *Wishlist) Items(ctx context.Context, s Session, opts ...optimist.GetOption) optimist.Entry[WishlistItem] {
	if !s.Authenticated() {
		return optimist.Entry[WishlistItem]{Key: w.key(s), Status: optimist.StatusEmpty}
	}
	return w.cache.Get(ctx, w.key(s), w.fetcher(s), opts...)
}

func (w *Wishlist) Load(ctx context.Context, s Session) (optimist.Entry[WishlistItem], error) {
	if !s.Authenticated() {
		return optimist.Entry[WishlistItem]{Key: w.key(s)}, ErrNotAuthenticated
	}
	return w.cache.Load(ctx, w.key(s), w.fetcher(s))
}

func (w *Wishlist) Add(ctx context.Context, s Session, p Product) (WishlistItem, error) {
	if err := w.authorize(s, "Please log in to add items to wishlist"); err != nil {
		return WishlistItem{}, err
	}
	if err := check(productInput{ProductID: p.ID}); err != nil {
		return WishlistItem{}, err
	}
	item := WishlistItem{
		UserID:    s.UserID,
		ProductID: p.ID,
		CreatedAt: w.set.now(),
		Product:   cloneProduct(&p),
	}
	return w.cache.Add(ctx, w.key(s), item, wrapCall(w.set, func(ctx context.Context, op optimist.Op[WishlistItem]) (WishlistItem, error) {
		return w.backend.AddToWishlist(ctx, s, op.TargetID)
	}))
}

func (w *Wishlist) Remove(ctx context.Context, s Session, productID string) error {
	if err := w.authorize(s, "Please log in to remove items from wishlist"); err != nil {
		return err
	}
	if err := check(productInput{ProductID: productID}); err != nil {
		return err
	}
	return w.cache.Remove(ctx, w.key(s), productID, wrapCall(w.set, func(ctx context.Context, op optimist.Op[WishlistItem]) (WishlistItem, error) {
		return WishlistItem{}, w.backend.RemoveFromWishlist(ctx, s, op.TargetID)
	}))
}

// Contains answers from the cached list when one has been loaded and asks
// the backend otherwise. A signed-out session never contains anything.
func (w *Wishlist) Contains(ctx context.Context, s Session, productID string) (bool, error) {
	if !s.Authenticated() {
		return false, nil
	}
	if e, ok := w.cache.Peek(w.key(s)); ok && !e.LastFetchedAt.IsZero() {
		_, found := e.Find(productID, wishlistID)
		return found, nil
	}
	return w.backend.InWishlist(ctx, s, productID)
}

func (w *Wishlist) Subscribe(s Session, fn func(optimist.Entry[WishlistItem])) func() {
	return w.cache.Subscribe(w.key(s), fn)
}

func (w *Wishlist) Invalidate(s Session) { w.cache.Invalidate(w.key(s)) }

func (w *Wishlist) Logout(ctx context.Context, s Session) error {
	return w.cache.Teardown(ctx, w.key(s))
}

func (w *Wishlist) Close(ctx context.Context) error { return w.cache.Close(ctx) }

func (w *Wishlist) authorize(s Session, msg string) error {
	if s.Authenticated() {
		return nil
	}
	if w.notify != nil {
		w.notify(optimist.Notification{Kind: optimist.NotifyError, Message: msg, Key: w.key(s), Err: ErrNotAuthenticated})
	}
	return ErrNotAuthenticated
}

func (w *Wishlist) describe(n optimist.Notification) string {
	if optimist.KindOf(n.Err) == optimist.TooManyPendingMutations {
		return "Too many pending changes, please wait"
	}
	if n.Kind == optimist.NotifyError {
		switch n.Op {
		case optimist.Fetch:
			return "Failed to load wishlist items"
		case optimist.Add:
			if errors.Is(n.Err, ErrAlreadyInWishlist) {
				return "Item is already in your wishlist"
			}
			return "Failed to add item to wishlist"
		case optimist.Remove:
			return "Failed to remove item from wishlist"
		}
		return optimist.DefaultMessage(n)
	}
	switch n.Op {
	case optimist.Add:
		name := n.TargetID
		e, _ := w.cache.Peek(n.Key)
		if it, ok := e.Find(n.TargetID, wishlistID); ok && it.Product != nil && it.Product.Name != "" {
			name = it.Product.Name
		}
		return fmt.Sprintf("Added %s to wishlist", name)
	case optimist.Remove:
		return "Item removed from wishlist"
	}
	return optimist.DefaultMessage(n)
}
