package tariff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/levenlabs/go-lflag"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tariffsaver/tariffsaver/pkg/common"
	"github.com/tariffsaver/tariffsaver/pkg/log"
	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// ErrAuth is returned for OAuth/token problems on the protected endpoints.
var ErrAuth = errors.New("tariff api authentication failed")

// APIError is returned when the upstream API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tariff api error %d: %s", e.StatusCode, e.Body)
}

// Client talks to the EKZ tariff API. The public tariff curve needs no
// credentials; the myEKZ endpoints require an OAuth2 bearer token.
type Client struct {
	baseURL     string
	hc          *http.Client
	tokenSource oauth2.TokenSource
}

// Configured sets up the tariff API client based on flags.
func Configured() *Client {
	baseURL := lflag.String("tariff-api-url", "https://api.tariffs.ekz.ch/v1", "Base URL of the tariff API")
	clientID := lflag.String("tariff-oauth-client-id", "", "OAuth2 client ID for myEKZ endpoints")
	clientSecret := lflag.String("tariff-oauth-client-secret", "", "OAuth2 client secret for myEKZ endpoints")
	tokenURL := lflag.String("tariff-oauth-token-url", "", "OAuth2 token endpoint for myEKZ endpoints")

	c := &Client{}

	lflag.Do(func() {
		c.baseURL = *baseURL
		c.hc = common.HTTPClient(30 * time.Second)
		if *clientID != "" && *tokenURL != "" {
			cfg := clientcredentials.Config{
				ClientID:     *clientID,
				ClientSecret: *clientSecret,
				TokenURL:     *tokenURL,
			}
			ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.hc)
			c.tokenSource = cfg.TokenSource(ctx)
		}
	})

	return c
}

// NewClient builds a client directly, used by tests.
func NewClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, hc: hc}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, authed bool) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if authed {
		if c.tokenSource == nil {
			return nil, fmt.Errorf("%w: no oauth credentials configured", ErrAuth)
		}
		tok, err := c.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrAuth, string(body))
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// FetchPrices fetches the raw price records for a tariff from the public
// endpoint. Records are returned undecoded; callers run them through
// ParseSlots / ParseComponents.
func (c *Client) FetchPrices(ctx context.Context, tariffName string) ([]map[string]any, error) {
	params := url.Values{"tariff_name": []string{tariffName}}
	log.Ctx(ctx).DebugContext(ctx, "fetching tariff prices", slog.String("tariff", tariffName))

	body, err := c.get(ctx, "/tariffs", params, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Prices []map[string]any `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tariffs payload: %w", err)
	}
	if payload.Prices == nil {
		return nil, fmt.Errorf("unexpected tariffs payload, missing 'prices'")
	}
	return payload.Prices, nil
}

// EMSLinkStatus fetches the myEKZ account linking status.
func (c *Client) EMSLinkStatus(ctx context.Context, emsInstanceID, redirectURI string) (map[string]any, error) {
	params := url.Values{
		"ems_instance_id": []string{emsInstanceID},
		"redirect_uri":    []string{redirectURI},
	}
	body, err := c.get(ctx, "/emsLinkStatus", params, true)
	if err != nil {
		return nil, err
	}

	var status map[string]any
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unexpected emsLinkStatus payload: %w", err)
	}
	return status, nil
}

// CustomerTariffs fetches customer-specific price records from the protected
// endpoint. The payload is either a bare list or wrapped in {"tariffs": [...]}.
func (c *Client) CustomerTariffs(ctx context.Context, emsInstanceID, tariffType string, start, end time.Time) ([]map[string]any, error) {
	params := url.Values{"ems_instance_id": []string{emsInstanceID}}
	if tariffType != "" {
		params.Set("tariff_type", tariffType)
	}
	if !start.IsZero() && !end.IsZero() {
		params.Set("start_timestamp", start.UTC().Format(time.RFC3339))
		params.Set("end_timestamp", end.UTC().Format(time.RFC3339))
	}

	body, err := c.get(ctx, "/customerTariffs", params, true)
	if err != nil {
		return nil, err
	}

	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Tariffs []map[string]any `json:"tariffs"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Tariffs != nil {
		return wrapped.Tariffs, nil
	}
	return nil, fmt.Errorf("unexpected customerTariffs payload")
}

// ParseSlots converts raw price records into normalized slots, dropping
// records without a parseable start timestamp and de-duplicating by slot
// start (last record wins). The result is sorted by start.
func ParseSlots(records []map[string]any) []types.PriceSlot {
	byStart := make(map[time.Time]types.PriceSlot, len(records))
	for _, rec := range records {
		startStr, ok := rec["start_timestamp"].(string)
		if !ok {
			continue
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			continue
		}
		start = start.UTC()
		byStart[start] = types.PriceSlot{
			Start:      start,
			Components: ParseComponents(rec),
		}
	}

	slots := make([]types.PriceSlot, 0, len(byStart))
	for _, s := range byStart {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}
