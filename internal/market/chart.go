package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/storage"
)

type chartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// ParseChart decodes a market_chart payload into points ordered by date.
// Entries with fewer than two elements are dropped.
func ParseChart(data []byte) ([]domain.ChartPoint, error) {
	var resp chartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Prices == nil {
		return nil, fmt.Errorf("missing prices field")
	}

	points := make([]domain.ChartPoint, 0, len(resp.Prices))
	for _, entry := range resp.Prices {
		if len(entry) < 2 {
			continue
		}
		points = append(points, domain.ChartPoint{
			Date:  time.UnixMilli(int64(entry[0])).UTC(),
			Price: entry[1],
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

// FetchChartSeries returns the price history of assetID in currency.
//
// Successful responses are cached before parsing. On any failure the last
// cached payload for the pair is served instead; with no usable cache an
// empty series is returned, except that a rate limit surfaces as
// ErrThrottledNoCache.
func (c *Client) FetchChartSeries(ctx context.Context, assetID, currency string) ([]domain.ChartPoint, error) {
	currency = strings.ToLower(currency)
	key := storage.ChartKey(assetID, currency, c.chartDays)

	q := url.Values{}
	q.Set("vs_currency", currency)
	q.Set("days", strconv.Itoa(c.chartDays))

	body, err := c.get(ctx, "chart", "/coins/"+url.PathEscape(assetID)+"/market_chart", q)
	if err == nil {
		if c.cache != nil {
			c.cache.Save(key, body)
		}
		points, perr := ParseChart(body)
		if perr == nil {
			return points, nil
		}
		err = &Error{Kind: KindMalformed, Op: "chart", Err: perr}
	}

	slog.Warn("Chart fetch failed, trying cache",
		slog.String("key", key),
		slog.Any("error", err))

	if c.cache != nil {
		if cached, ok := c.cache.Load(key); ok {
			points, perr := ParseChart(cached)
			if perr == nil {
				return points, nil
			}
			slog.Warn("Cached chart payload unreadable",
				slog.String("key", key),
				slog.Any("error", perr))
		}
	}

	if KindOf(err) == KindRateLimited {
		return nil, &Error{Kind: KindThrottledNoCache, Op: "chart", Status: 429}
	}
	return []domain.ChartPoint{}, nil
}
