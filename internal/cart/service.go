package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// LoginPolicy decides what happens to a device cart when its shopper signs
// in.
type LoginPolicy string

const (
	// LoginDiscard drops the device cart and shows the remote cart.
	LoginDiscard LoginPolicy = "discard"
	// LoginMerge adds the device lines to the remote cart first.
	LoginMerge LoginPolicy = "merge"
)

// ParseLoginPolicy validates a configured policy name.
func ParseLoginPolicy(s string) (LoginPolicy, error) {
	switch p := LoginPolicy(s); p {
	case LoginDiscard, LoginMerge:
		return p, nil
	case "":
		return LoginDiscard, nil
	default:
		return "", fmt.Errorf("unknown cart login policy %q", s)
	}
}

// Options tune a Service.
type Options struct {
	LoginPolicy LoginPolicy
	// Timeout bounds every backend call.
	Timeout time.Duration
	Now     func() time.Time
}

// Service opens Stores and coordinates per-shopper access across requests.
type Service struct {
	remote RemoteBackend
	local  LocalBackend
	opts   Options
	locks  keyedMutex
	logger *logging.LoggerV2
}

func NewService(remote RemoteBackend, local LocalBackend, opts Options) *Service {
	if opts.LoginPolicy == "" {
		opts.LoginPolicy = LoginDiscard
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		remote: remote,
		local:  local,
		opts:   opts,
		logger: logging.NewLoggerV2("cart"),
	}
}

// Open loads the shopper's cart. Signed-in shoppers read the remote
// backend; when that fails the store falls back to the session's device
// cart, or an empty one, and is flagged degraded.
func (s *Service) Open(ctx context.Context, shopper Shopper) (*Store, error) {
	if !shopper.Authenticated() && shopper.SessionID == "" {
		return nil, errors.NewValidationError("session", "a user or session id is required")
	}

	st := &Store{
		shopper: shopper,
		remote:  s.remote,
		local:   s.local,
		timeout: s.opts.Timeout,
		now:     s.opts.Now,
		logger:  s.logger,
	}

	if shopper.Authenticated() {
		err := st.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			st.snap, err = s.remote.Load(ctx, shopper.UserID)
			return err
		})
		if err == nil {
			return st, nil
		}

		metrics.CartDegradedLoads.Inc()
		s.logger.Warn("Remote cart unavailable, using fallback", logging.Fields{
			"user_id":    shopper.UserID,
			"session_id": shopper.SessionID,
			"error":      err.Error(),
		})
		st.degraded = true
		st.loadErr = err
		st.snap = s.fallbackSnapshot(ctx, shopper)
		return st, nil
	}

	err := st.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		st.snap, err = s.local.Load(ctx, shopper.SessionID)
		return err
	})
	if err != nil {
		s.logger.Warn("Device cart unavailable, starting empty", logging.Fields{
			"session_id": shopper.SessionID,
			"error":      err.Error(),
		})
		st.degraded = true
		st.loadErr = err
		st.snap = emptySnapshot(shopper.SessionID)
	}
	return st, nil
}

func (s *Service) fallbackSnapshot(ctx context.Context, shopper Shopper) models.CartSnapshot {
	if shopper.SessionID != "" {
		snap, err := s.local.Load(ctx, shopper.SessionID)
		if err == nil {
			snap.Owner = shopper.UserID
			return snap
		}
	}
	return emptySnapshot(shopper.UserID)
}

// View returns the shopper's cart.
func (s *Service) View(ctx context.Context, shopper Shopper) (models.CartView, error) {
	st, err := s.Open(ctx, shopper)
	if err != nil {
		return models.CartView{}, err
	}
	return st.View(), nil
}

// Mutate opens the shopper's cart and applies fn while holding the
// shopper's lock. The returned view reflects the store after fn, including
// optimistic local changes kept when fn fails.
func (s *Service) Mutate(ctx context.Context, shopper Shopper, fn func(ctx context.Context, st *Store) error) (models.CartView, error) {
	unlock := s.locks.Lock(shopper.Key())
	defer unlock()

	st, err := s.Open(ctx, shopper)
	if err != nil {
		return models.CartView{}, err
	}
	err = fn(ctx, st)
	return st.View(), err
}

// Login moves a shopper from their device cart to their account cart,
// applying the configured policy to the device cart, and returns the
// reloaded account cart.
func (s *Service) Login(ctx context.Context, userID, sessionID string) (*Store, error) {
	if userID == "" {
		return nil, errors.ErrAuthRequired
	}

	unlock := s.locks.Lock(Shopper{UserID: userID}.Key())
	defer unlock()

	if sessionID != "" {
		if err := s.absorbDeviceCart(ctx, userID, sessionID); err != nil {
			return nil, err
		}
	}

	return s.Open(ctx, Shopper{UserID: userID, SessionID: sessionID})
}

func (s *Service) absorbDeviceCart(ctx context.Context, userID, sessionID string) error {
	device, err := s.local.Load(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Device cart unreadable at login", logging.Fields{
			"user_id":    userID,
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return nil
	}
	if device.IsEmpty() {
		return nil
	}

	if s.opts.LoginPolicy == LoginMerge {
		// Each merged line leaves the device cart immediately so a retry
		// after a partial failure does not add it twice.
		for len(device.Items) > 0 {
			entry := device.Items[0]
			if err := s.remote.AddItem(ctx, userID, entry); err != nil {
				return err
			}
			device.Items = device.Items[1:]
			if len(device.Items) > 0 {
				if err := s.local.Save(ctx, sessionID, device); err != nil {
					return err
				}
			}
		}
		s.logger.Info("Device cart merged at login", logging.Fields{
			"user_id":    userID,
			"session_id": sessionID,
		})
	}

	if err := s.local.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("Device cart not removed at login", logging.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	return nil
}

func emptySnapshot(owner string) models.CartSnapshot {
	return models.CartSnapshot{Owner: owner, Items: []models.CartEntry{}}
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
