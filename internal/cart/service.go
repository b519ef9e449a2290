package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Persister stores and restores cart snapshots per shopper session. Save returns ErrStaleState
// when the stored snapshot has a version at or above state.Version.
type Persister interface {
	Save(ctx context.Context, sessionID string, state State) error
	Load(ctx context.Context, sessionID string) (State, bool, error)
}

// Service binds cart stores to sessions, the persisted-state layer and the catalog.
type Service struct {
	Persister   Persister
	Catalog     catalog.Source
	Policy      pricing.Policy
	Logger      zerolog.Logger
	SaveTimeout time.Duration
}

func (s *Service) saveTimeout() time.Duration {
	if s == nil || s.SaveTimeout <= 0 {
		return 2 * time.Second
	}
	return s.SaveTimeout
}

// Open loads the session's cart. A missing snapshot yields an empty cart; a load failure is
// logged and also yields an empty cart.
func (s *Service) Open(ctx context.Context, sessionID string) (*Store, error) {
	if s == nil {
		return nil, errors.New("cart service not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("cart: session id required")
	}
	var state State
	if s.Persister != nil {
		loaded, ok, err := s.Persister.Load(ctx, sessionID)
		if err != nil {
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("cart_load_failed")
		} else if ok {
			state = loaded
		}
	}
	return NewStore(state, s.persistHook(ctx, sessionID)), nil
}

func (s *Service) persistHook(ctx context.Context, sessionID string) func(State) {
	if s.Persister == nil {
		return nil
	}
	base := context.WithoutCancel(ctx)
	return func(state State) {
		saveCtx, cancel := context.WithTimeout(base, s.saveTimeout())
		defer cancel()
		err := s.Persister.Save(saveCtx, sessionID, state)
		switch {
		case err == nil:
		case errors.Is(err, ErrStaleState):
			s.Logger.Info().Str("session_id", sessionID).Int64("version", state.Version).Msg("cart_persist_stale")
		default:
			obs.CountCartPersistFailure()
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("cart_persist_failed")
		}
	}
}

// Reload replaces the store's state with the persisted snapshot when that snapshot is at least
// as new. A missing snapshot keeps the in-memory copy.
func (s *Service) Reload(ctx context.Context, sessionID string, store *Store) error {
	if s == nil || s.Persister == nil {
		return nil
	}
	loaded, ok, err := s.Persister.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reload cart: %w", err)
	}
	if ok && loaded.Version >= store.Version() {
		store.Replace(loaded)
	}
	return nil
}

// AddItem consults the catalog for a fresh snapshot and adds or updates the line item.
// This is the only operation that reads the catalog.
func (s *Service) AddItem(ctx context.Context, store *Store, productID string, qty int) error {
	if err := s.upsert(ctx, store, productID, qty); err != nil {
		return err
	}
	obs.CountCartMutation("add")
	return nil
}

func (s *Service) upsert(ctx context.Context, store *Store, productID string, qty int) error {
	if s == nil || s.Catalog == nil {
		return errors.New("cart service not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("productId is required: %w", ErrNotFound)
	}
	product, err := s.Catalog.Product(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("catalog lookup: %w", err)
	}
	if !product.InStock() {
		return ErrOutOfStock
	}
	return store.AddOrUpdate(snapshotOf(product), qty)
}

// UpdateItem changes an existing line's quantity, refreshing its snapshot from the catalog.
// When the catalog is unreachable the quantity is checked against the stored snapshot instead.
func (s *Service) UpdateItem(ctx context.Context, store *Store, productID string, qty int) error {
	if !contains(store.Items(), productID) {
		return ErrNotFound
	}
	err := s.upsert(ctx, store, productID, qty)
	if err != nil && isCatalogOutage(err) {
		s.Logger.Warn().Err(err).Str("product_id", productID).Msg("cart_update_stale_snapshot")
		err = store.UpdateQuantity(productID, qty)
	}
	if err != nil {
		return err
	}
	obs.CountCartMutation("update")
	return nil
}

// RemoveItem drops a line item; absent ids are ignored.
func (s *Service) RemoveItem(store *Store, productID string) {
	store.Remove(productID)
	obs.CountCartMutation("remove")
}

// Clear empties the cart.
func (s *Service) Clear(store *Store) {
	store.Clear()
	obs.CountCartMutation("clear")
}

// Totals returns the cart-level totals, with zero tax.
func (s *Service) Totals(store *Store) Totals {
	return store.Totals(s.Policy, pricing.Money{})
}

// Middleware loads the session's cart once per request and attaches it to the context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := common.SessionID(r.Context())
		if !ok {
			common.JSONError(w, http.StatusBadRequest, "NO_SESSION", "cart session missing", nil)
			return
		}
		store, err := s.Open(r.Context(), sessionID)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to open cart", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), store)))
	})
}

func snapshotOf(p catalog.Product) LineItem {
	return LineItem{
		ProductID:    p.ID,
		Name:         p.Name,
		Image:        p.Image,
		Brand:        p.Brand,
		UnitPrice:    p.Price,
		CountInStock: p.CountInStock,
	}
}

func isCatalogOutage(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrOutOfStock) && !errors.Is(err, ErrInvalidQuantity)
}

func contains(items []LineItem, productID string) bool {
	for _, it := range items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}
