package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

const (
	// DefaultPolygonBaseURL is the production REST endpoint.
	DefaultPolygonBaseURL = "https://api.polygon.io"
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 10 * time.Second
	// chainPageLimit is the max contracts the snapshot endpoint returns per page.
	chainPageLimit = 250
	// maxChainPages caps next_url pagination.
	maxChainPages = 20
)

// PolygonClient is a single-attempt client for the Polygon REST API.
// Wrap it with NewRetryingProvider for the production retry schedule.
type PolygonClient struct {
	client *resty.Client
	logger logrus.FieldLogger
}

// Ensure PolygonClient implements Provider
var _ Provider = (*PolygonClient)(nil)

// NewPolygonClient creates a client authenticated with apiKey.
// An empty baseURL uses DefaultPolygonBaseURL; a zero timeout uses DefaultTimeout.
func NewPolygonClient(apiKey, baseURL string, timeout time.Duration, logger logrus.FieldLogger) *PolygonClient {
	if baseURL == "" {
		baseURL = DefaultPolygonBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Accept", "application/json")

	return &PolygonClient{client: client, logger: logger}
}

// ============ Polygon response structures ============

type aggsResponse struct {
	Status       string    `json:"status"`
	Ticker       string    `json:"ticker"`
	ResultsCount int       `json:"resultsCount"`
	Results      []aggsBar `json:"results"`
	Error        string    `json:"error"`
	Message      string    `json:"message"`
}

type aggsBar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

type chainResponse struct {
	Status  string            `json:"status"`
	Results []json.RawMessage `json:"results"`
	NextURL string            `json:"next_url"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
}

type singleResponse struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// snapshotRecord is one contract from the snapshot endpoints. Pointer fields
// distinguish "absent" from zero.
type snapshotRecord struct {
	Details struct {
		Ticker         string   `json:"ticker"`
		ContractType   string   `json:"contract_type"`
		ExpirationDate string   `json:"expiration_date"`
		StrikePrice    *float64 `json:"strike_price"`
	} `json:"details"`
	Day struct {
		Close float64 `json:"close"`
	} `json:"day"`
	LastQuote struct {
		Bid      float64 `json:"bid"`
		Ask      float64 `json:"ask"`
		Midpoint float64 `json:"midpoint"`
	} `json:"last_quote"`
	Greeks struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
	} `json:"greeks"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	OpenInterest      float64 `json:"open_interest"`
	UnderlyingAsset   struct {
		Ticker string `json:"ticker"`
	} `json:"underlying_asset"`
}

// ============ API calls ============

// GetDailyBars fetches adjusted daily aggregates for [from, to].
func (p *PolygonClient) GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(ticker), from.Format(models.DateLayout), to.Format(models.DateLayout))

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"adjusted": "true",
			"sort":     "asc",
			"limit":    "50000",
		}).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("daily bars request for %s: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	var body aggsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decoding daily bars for %s: %w", ticker, err)
	}
	if body.Status == "ERROR" {
		return nil, fmt.Errorf("daily bars for %s: %s", ticker, firstNonEmpty(body.Error, body.Message, "unknown error"))
	}

	bars := make([]models.Bar, 0, len(body.Results))
	for _, r := range body.Results {
		bars = append(bars, models.Bar{
			Date:   models.NewDate(time.UnixMilli(r.Timestamp).UTC()),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// GetOptionsChainSnapshot fetches every page of a filtered chain snapshot.
func (p *PolygonClient) GetOptionsChainSnapshot(ctx context.Context, q ChainQuery) ([]models.OptionContract, error) {
	ticker := strings.ToUpper(strings.TrimSpace(q.Ticker))
	params := map[string]string{
		"limit": strconv.Itoa(chainPageLimit),
	}
	if !q.ExpirationGTE.IsZero() {
		params["expiration_date.gte"] = q.ExpirationGTE.Format(models.DateLayout)
	}
	if !q.ExpirationLTE.IsZero() {
		params["expiration_date.lte"] = q.ExpirationLTE.Format(models.DateLayout)
	}
	if q.ContractType != "" {
		params["contract_type"] = string(q.ContractType)
	}
	if q.StrikeGTE != nil {
		params["strike_price.gte"] = strconv.FormatFloat(*q.StrikeGTE, 'f', -1, 64)
	}
	if q.StrikeLTE != nil {
		params["strike_price.lte"] = strconv.FormatFloat(*q.StrikeLTE, 'f', -1, 64)
	}

	var contracts []models.OptionContract
	req := p.client.R().SetContext(ctx).SetQueryParams(params)
	next := "/v3/snapshot/options/" + url.PathEscape(ticker)

	for page := 0; next != "" && page < maxChainPages; page++ {
		resp, err := req.Get(next)
		if err != nil {
			return nil, fmt.Errorf("options chain request for %s: %w", ticker, err)
		}
		if resp.IsError() {
			return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
		}

		var body chainResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, fmt.Errorf("decoding options chain for %s: %w", ticker, err)
		}
		if body.Status == "ERROR" {
			return nil, fmt.Errorf("options chain for %s: %s", ticker, firstNonEmpty(body.Error, body.Message, "unknown error"))
		}

		for _, raw := range body.Results {
			c, err := parseSnapshotRecord(raw, ticker)
			if err != nil {
				p.logger.WithField("ticker", ticker).Warnf("Skipping contract: %v", err)
				continue
			}
			contracts = append(contracts, c)
		}

		// next_url already carries the cursor and original filters
		next = body.NextURL
		req = p.client.R().SetContext(ctx)
	}
	if next != "" {
		p.logger.WithField("ticker", ticker).Warnf("Options chain truncated at %d pages (%d contracts)", maxChainPages, len(contracts))
	}

	return contracts, nil
}

// GetSingleContractSnapshot fetches one contract by option ticker.
func (p *PolygonClient) GetSingleContractSnapshot(ctx context.Context, ticker, optionTicker string) (models.OptionContract, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	path := fmt.Sprintf("/v3/snapshot/options/%s/%s", url.PathEscape(ticker), url.PathEscape(optionTicker))

	resp, err := p.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return models.OptionContract{}, fmt.Errorf("contract snapshot request for %s: %w", optionTicker, err)
	}
	if resp.IsError() {
		return models.OptionContract{}, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	var body singleResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return models.OptionContract{}, fmt.Errorf("decoding contract snapshot for %s: %w", optionTicker, err)
	}
	if body.Status == "ERROR" || len(body.Results) == 0 || string(body.Results) == "null" {
		return models.OptionContract{}, fmt.Errorf("contract snapshot for %s: %s",
			optionTicker, firstNonEmpty(body.Error, body.Message, "no results"))
	}

	return parseSnapshotRecord(body.Results, ticker)
}

// parseSnapshotRecord decodes one contract, returning *PartialParseError when
// the record is malformed or lacks a required field.
func parseSnapshotRecord(raw json.RawMessage, underlying string) (models.OptionContract, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.OptionContract{}, &PartialParseError{ContractID: peekTicker(raw), Field: "record", Err: err}
	}

	id := rec.Details.Ticker
	if id == "" {
		return models.OptionContract{}, &PartialParseError{Field: "details.ticker", Err: errors.New("missing")}
	}
	optType, ok := models.ParseOptionType(rec.Details.ContractType)
	if !ok {
		return models.OptionContract{}, &PartialParseError{ContractID: id, Field: "details.contract_type",
			Err: fmt.Errorf("unknown contract type %q", rec.Details.ContractType)}
	}
	exp, err := models.ParseDate(rec.Details.ExpirationDate)
	if err != nil {
		return models.OptionContract{}, &PartialParseError{ContractID: id, Field: "details.expiration_date", Err: err}
	}
	if rec.Details.StrikePrice == nil || *rec.Details.StrikePrice <= 0 {
		return models.OptionContract{}, &PartialParseError{ContractID: id, Field: "details.strike_price", Err: errors.New("missing or non-positive")}
	}

	if rec.UnderlyingAsset.Ticker != "" {
		underlying = rec.UnderlyingAsset.Ticker
	}

	c := models.OptionContract{
		Ticker:     id,
		Underlying: underlying,
		Type:       optType,
		Strike:     *rec.Details.StrikePrice,
		Expiration: exp,
		Bid:        rec.LastQuote.Bid,
		Ask:        rec.LastQuote.Ask,
		LastClose:  rec.Day.Close,
		Greeks: models.Greeks{
			Delta: rec.Greeks.Delta,
			Gamma: rec.Greeks.Gamma,
			Theta: rec.Greeks.Theta,
			Vega:  rec.Greeks.Vega,
		},
		ImpliedVolatility: rec.ImpliedVolatility,
		OpenInterest:      int64(rec.OpenInterest),
	}
	c.Mid = SelectPrice(c.Bid, c.Ask, c.LastClose)
	return c, nil
}

// peekTicker pulls details.ticker out of a record that failed full decoding.
func peekTicker(raw json.RawMessage) string {
	var envelope struct {
		Details struct {
			Ticker string `json:"ticker"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	return envelope.Details.Ticker
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
