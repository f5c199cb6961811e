package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/linksnip/linksnip/internal/filter"
	"github.com/linksnip/linksnip/internal/model"
	"github.com/linksnip/linksnip/internal/shortcode"
)

// createRetries bounds fresh-code attempts when an insert hits the unique
// index on links.code.
const createRetries = 3

// Store is the durable source of truth for links and clicks
type Store interface {
	Create(ctx context.Context, link *model.Link) error
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	GetByCodeWithClicks(ctx context.Context, code string) (*model.Link, error)
	RecordClick(ctx context.Context, code, ip, userAgent, referer string) error
	AllCodes(ctx context.Context) ([]string, error)
}

// Cache is the volatile code-to-URL store. Implementations are best-effort;
// the service never fails a request over a cache error.
type Cache interface {
	Get(ctx context.Context, code string) (string, error)
	Set(ctx context.Context, code, url string, ttl time.Duration) error
}

// LinkService orchestrates link creation and cache-aside resolution across
// the store and the cache.
type LinkService struct {
	store      Store
	cache      Cache
	bloom      *filter.BloomFilter
	codes      *shortcode.Generator
	defaultTTL time.Duration
	log        zerolog.Logger

	// bloomWarmed gates the negative-lookup guard. Until a warm-up has
	// loaded every previously issued code, a negative filter answer may
	// be a false negative and must not short-circuit resolution.
	bloomWarmed atomic.Bool
}

// NewLinkService creates a link service. defaultTTLHours applies when a
// creation request carries no TTL.
func NewLinkService(store Store, cache Cache, bloom *filter.BloomFilter, codes *shortcode.Generator, defaultTTLHours int, log zerolog.Logger) *LinkService {
	return &LinkService{
		store:      store,
		cache:      cache,
		bloom:      bloom,
		codes:      codes,
		defaultTTL: time.Duration(defaultTTLHours) * time.Hour,
		log:        log,
	}
}

// Create shortens a URL. The store write strictly precedes the cache write,
// so the cache never holds an entry the store does not. A cache failure
// after a successful insert is tolerated; the next Resolve repopulates it.
func (s *LinkService) Create(ctx context.Context, rawURL string, ttlHours *int) (*model.Link, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	ttl := s.defaultTTL
	if ttlHours != nil {
		if *ttlHours <= 0 {
			return nil, ErrInvalidTTL
		}
		ttl = time.Duration(*ttlHours) * time.Hour
	}

	link, err := s.insertWithFreshCode(ctx, rawURL, ttl)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, link.Code, link.URL, ttl); err != nil {
		s.log.Warn().Err(err).Str("code", link.Code).Msg("cache write after create failed")
	}
	s.bloom.Add(link.Code)

	return link, nil
}

// insertWithFreshCode inserts a link, regenerating the code a bounded
// number of times when the unique index reports a collision.
func (s *LinkService) insertWithFreshCode(ctx context.Context, rawURL string, ttl time.Duration) (*model.Link, error) {
	var lastErr error
	for attempt := 0; attempt <= createRetries; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		link := &model.Link{
			Code:      code,
			URL:       rawURL,
			ExpiresAt: time.Now().Add(ttl),
		}
		if err := s.store.Create(ctx, link); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				s.log.Warn().Str("code", code).Int("attempt", attempt+1).Msg("short code collision")
				lastErr = err
				continue
			}
			return nil, err
		}
		return link, nil
	}
	return nil, fmt.Errorf("exhausted code generation retries: %w", lastErr)
}

// Resolve returns the URL a code currently points to, or ErrNotFound when
// the code is unknown or expired.
//
// Cache hits are trusted without consulting the store: entries are always
// written with a TTL bounded by the link's authoritative expires_at, so
// they cannot outlive it. On a miss the store is read, logical expiry is
// enforced, and the cache is repopulated with exactly the remaining TTL.
func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	if s.bloomWarmed.Load() && !s.bloom.Test(code) {
		return "", ErrNotFound
	}

	cached, err := s.cache.Get(ctx, code)
	if err != nil {
		// cache down == cache miss
		s.log.Warn().Err(err).Str("code", code).Msg("cache read failed, falling back to store")
	}
	if cached != "" {
		return cached, nil
	}

	link, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", ErrNotFound
	}

	now := time.Now()
	if link.IsExpired(now) {
		return "", ErrNotFound
	}

	if remaining := link.RemainingTTL(now); remaining > 0 {
		if err := s.cache.Set(ctx, code, link.URL, remaining); err != nil {
			s.log.Warn().Err(err).Str("code", code).Msg("cache repopulation failed")
		}
	}

	return link.URL, nil
}

// Stats returns a link with its full click log. Expired links still report
// stats; only resolution enforces expiry.
func (s *LinkService) Stats(ctx context.Context, code string) (*model.Link, error) {
	link, err := s.store.GetByCodeWithClicks(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	return link, nil
}

// WarmBloomFilter loads every issued code into the bloom filter and arms
// the negative-lookup guard. Called once at startup; on failure the guard
// stays disarmed and every resolve consults cache and store, so the caller
// loses store shielding but not correctness.
func (s *LinkService) WarmBloomFilter(ctx context.Context) error {
	codes, err := s.store.AllCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load codes for bloom filter: %w", err)
	}
	s.bloom.AddBatch(codes)
	s.bloomWarmed.Store(true)
	s.log.Info().Int("codes", len(codes)).Msg("bloom filter warmed")
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}
