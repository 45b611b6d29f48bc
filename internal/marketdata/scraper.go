// Package marketdata pulls the exchange price board and refreshes the
// advisory live share prices. Prices from here never settle trades on
// their own; execution always reads the company row inside the trade's
// own atomic unit.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/pkg/logger"
	"github.com/sokocap/soko-backoffice/pkg/metrics"
)

// BoardEntry is one row of the exchange price board feed.
type BoardEntry struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type priceBoard struct {
	Entries []BoardEntry `json:"entries"`
}

// Scraper periodically fetches the price board and writes fresh share
// prices for listed companies.
type Scraper struct {
	store      ledger.Store
	cache      *Cache
	httpClient *http.Client
	sourceURL  string
	interval   time.Duration
}

// NewScraper creates a price board scraper. cache may be nil.
func NewScraper(store ledger.Store, cache *Cache, sourceURL string, interval time.Duration) *Scraper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scraper{
		store:      store,
		cache:      cache,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sourceURL:  sourceURL,
		interval:   interval,
	}
}

// Run scrapes on the configured interval until ctx is cancelled.
func (s *Scraper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.ScrapeOnce(ctx); err != nil {
			logger.Error().Err(err).Str("source", s.sourceURL).Msg("price board scrape failed")
			metrics.RecordPriceScrape("failed")
		} else {
			metrics.RecordPriceScrape("ok")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScrapeOnce fetches the board and applies every entry that matches a
// listed company. Unknown symbols and malformed prices are skipped.
func (s *Scraper) ScrapeOnce(ctx context.Context) error {
	entries, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	var updated int
	for _, entry := range entries {
		price, err := decimal.NewFromString(entry.Price)
		if err != nil || !price.IsPositive() {
			logger.Warn().Str("symbol", entry.Symbol).Str("price", entry.Price).Msg("skipping malformed board entry")
			continue
		}

		company, err := s.store.GetCompanyBySymbol(ctx, entry.Symbol)
		if err != nil {
			continue
		}

		err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			return tx.UpdateCompanySharePrice(ctx, company.ID, price)
		})
		if err != nil {
			logger.Error().Err(err).Str("symbol", entry.Symbol).Msg("failed to update share price")
			continue
		}

		if s.cache != nil {
			s.cache.SetQuote(ctx, entry.Symbol, Quote{
				Symbol:    entry.Symbol,
				Price:     price.String(),
				FetchedAt: time.Now().UTC(),
			})
		}
		updated++
	}

	logger.Info().Int("entries", len(entries)).Int("updated", updated).Msg("price board scraped")
	return nil
}

func (s *Scraper) fetch(ctx context.Context) ([]BoardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price board: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price board returned status %d", resp.StatusCode)
	}

	var board priceBoard
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, fmt.Errorf("failed to decode price board: %w", err)
	}
	return board.Entries, nil
}
