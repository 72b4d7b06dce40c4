// Package marketdata supplies latest market prices to the metric engine and
// keeps the stored Market Price metric in sync with the quote provider.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/clientdata"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/events"
	"github.com/aristath/eqtrak/internal/modules/metrics"
)

// ErrDisabled is returned when no quote provider is configured.
var ErrDisabled = fmt.Errorf("%w: no quote provider configured", metrics.ErrExternalUnavailable)

// Quoter fetches a latest price from an upstream API.
type Quoter interface {
	LatestPrice(ctx context.Context, ticker string) (domain.PriceQuote, error)
}

// PriceWriter stores Market Price values.
type PriceWriter interface {
	RecordExternal(ctx context.Context, metricID string, target domain.Target, date time.Time, in metrics.ValueInput, source string) (*metrics.Value, error)
}

// PriceReader reads stored Market Price values.
type PriceReader interface {
	Latest(ctx context.Context, metricID string, target domain.Target) (*metrics.Value, error)
}

// Config tunes the service.
type Config struct {
	CacheTTL time.Duration
}

type cachedQuote struct {
	Ticker string `msgpack:"ticker"`
	Price  string `msgpack:"price"`
	Source string `msgpack:"source"`
	Date   int64  `msgpack:"date"`
}

func (c cachedQuote) quote() (domain.PriceQuote, error) {
	price, err := decimal.NewFromString(c.Price)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{
		Date:   time.Unix(c.Date, 0).UTC(),
		Ticker: c.Ticker,
		Source: c.Source,
		Price:  price,
	}, nil
}

// Service is a cache-first market data provider.
type Service struct {
	quoter   Quoter
	cache    *clientdata.Repository
	entities domain.EntityResolver
	writer   PriceWriter
	reader   PriceReader
	bus      *events.Bus
	cfg      Config
	log      zerolog.Logger
}

// NewService creates a new market data service. quoter may be nil, in which
// case every lookup fails with ErrDisabled. cache may be nil to disable caching.
func NewService(quoter Quoter, cache *clientdata.Repository, entities domain.EntityResolver,
	writer PriceWriter, reader PriceReader, bus *events.Bus, cfg Config, log zerolog.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = clientdata.TTLCurrentPrice
	}
	return &Service{
		quoter:   quoter,
		cache:    cache,
		entities: entities,
		writer:   writer,
		reader:   reader,
		bus:      bus,
		cfg:      cfg,
		log:      log.With().Str("service", "marketdata").Logger(),
	}
}

// Enabled reports whether a quote provider is configured.
func (s *Service) Enabled() bool {
	return s.quoter != nil
}

// LatestPrice returns a cached price while fresh, otherwise asks the
// provider. If the provider fails, a stale cached price is returned.
func (s *Service) LatestPrice(ctx context.Context, ticker string) (domain.PriceQuote, error) {
	if !s.Enabled() {
		return domain.PriceQuote{}, ErrDisabled
	}

	if q, ok := s.cached(ticker, true); ok {
		s.log.Debug().Str("ticker", ticker).Msg("Cache hit")
		return q, nil
	}

	quote, err := s.quoter.LatestPrice(ctx, ticker)
	if err != nil {
		if stale, ok := s.cached(ticker, false); ok {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Provider failed, using stale cached price")
			return stale, nil
		}
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %v", metrics.ErrExternalUnavailable, ticker, err)
	}

	if s.cache != nil {
		entry := cachedQuote{
			Ticker: quote.Ticker,
			Price:  quote.Price.String(),
			Source: quote.Source,
			Date:   quote.Date.Unix(),
		}
		if err := s.cache.Store(clientdata.TablePrices, ticker, entry, s.cfg.CacheTTL); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache price")
		}
	}
	return quote, nil
}

func (s *Service) cached(ticker string, freshOnly bool) (domain.PriceQuote, bool) {
	if s.cache == nil {
		return domain.PriceQuote{}, false
	}
	var entry cachedQuote
	var found bool
	var err error
	if freshOnly {
		found, err = s.cache.GetIfFresh(clientdata.TablePrices, ticker, &entry)
	} else {
		found, err = s.cache.Get(clientdata.TablePrices, ticker, &entry)
	}
	if err != nil || !found {
		return domain.PriceQuote{}, false
	}
	q, err := entry.quote()
	if err != nil {
		return domain.PriceQuote{}, false
	}
	return q, true
}

// SyncResult summarizes one SyncPrices run.
type SyncResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SyncPrices fetches a price for every active position and stores it as the
// position's Market Price, dated by the quote. A price the user entered for
// the same date is left alone.
func (s *Service) SyncPrices(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if !s.Enabled() {
		return res, ErrDisabled
	}

	positions, err := s.entities.ActivePositionsAll(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list positions: %w", err)
	}

	metricID := metrics.SystemID(metrics.KeyMarketPrice)
	quotes := make(map[string]*domain.PriceQuote)
	source := ""

	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		quote, seen := quotes[pos.Ticker]
		if !seen {
			q, err := s.LatestPrice(ctx, pos.Ticker)
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Price sync failed")
			} else {
				quote = &q
			}
			quotes[pos.Ticker] = quote
		}
		if quote == nil {
			res.Failed++
			continue
		}
		source = quote.Source

		target := domain.PositionTarget(pos.ID)
		if s.userPriceExists(ctx, metricID, target, quote.Date) {
			res.Skipped++
			continue
		}

		price := quote.Price
		_, err := s.writer.RecordExternal(ctx, metricID, target, quote.Date, metrics.ValueInput{Numeric: &price}, quote.Source)
		if err != nil {
			if errors.Is(err, metrics.ErrNotFound) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Synced++
	}

	s.log.Info().
		Int("synced", res.Synced).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("Price sync completed")
	s.bus.Emit("marketdata", &events.PricesSyncedData{
		Source:  source,
		Synced:  res.Synced,
		Failed:  res.Failed,
		Skipped: res.Skipped,
	})
	return res, nil
}

func (s *Service) userPriceExists(ctx context.Context, metricID string, target domain.Target, date time.Time) bool {
	if s.reader == nil {
		return false
	}
	v, err := s.reader.Latest(ctx, metricID, target)
	if err != nil || v == nil {
		return false
	}
	return v.Provenance == metrics.ProvenanceUser && sameDay(v.ValueDate, date)
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
