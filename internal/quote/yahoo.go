package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// YahooSource implements Source using the Yahoo Finance chart API.
type YahooSource struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooSource creates a Yahoo Finance source with optional proxy support.
func NewYahooSource(proxyURL string) *YahooSource {
	return &YahooSource{
		Client:  newHTTPClient(proxyURL, 30*time.Second),
		BaseURL: "https://query1.finance.yahoo.com",
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

// YahooSymbol maps a bare A-share code to its Yahoo ticker. Symbols that
// already carry a suffix, or are not six digits, pass through unchanged.
func YahooSymbol(symbol string) string {
	if len(symbol) != 6 || strings.ContainsRune(symbol, '.') {
		return symbol
	}
	for _, r := range symbol {
		if r < '0' || r > '9' {
			return symbol
		}
	}
	switch symbol[0] {
	case '6', '9':
		return symbol + ".SS"
	case '0', '2', '3':
		return symbol + ".SZ"
	case '4', '8':
		return symbol + ".BJ"
	}
	return symbol
}

// yahooChart is the subset of the chart API response used for quotes.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (y *YahooSource) Quote(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d",
		y.BaseURL, url.PathEscape(YahooSymbol(symbol)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("yahoo %s: %w", symbol, ErrNoQuote)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return 0, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo %s: %s: %w", symbol, chart.Chart.Error.Description, ErrNoQuote)
	}
	if len(chart.Chart.Result) == 0 {
		return 0, fmt.Errorf("yahoo %s: %w", symbol, ErrNoQuote)
	}

	result := chart.Chart.Result[0]
	if p := result.Meta.RegularMarketPrice; p > 0 {
		return p, nil
	}
	// Fall back to the most recent non-null close.
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if c := toFloat(closes[i]); c > 0 {
				return c, nil
			}
		}
	}
	return 0, fmt.Errorf("yahoo %s: %w", symbol, ErrNoQuote)
}
