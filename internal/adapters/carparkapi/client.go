// Package carparkapi talks to the remote car park query service: live lots,
// parking rates, static info and the Google login exchange.
package carparkapi

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
	"github.com/samirrijal/carparkfinder/internal/pkg/telemetry"
)

// Remote endpoints, relative to the base URL.
const (
	EndpointLots        = "/api/car-park/query/lots"
	EndpointRates       = "/api/car-park/query/parking-rate"
	EndpointInfo        = "/api/car-park/query/info"
	EndpointGoogleLogin = "/api/auth/google-login"
)

// DefaultTimeout bounds one remote call.
const DefaultTimeout = 15 * time.Second

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: request failed with status %d", e.Endpoint, e.Code)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Location is the zone window times are rendered in. Defaults to time.Local.
	Location   *time.Location
	HTTPClient *http.Client
}

// Client implements ports.CarparkQueryClient and ports.SessionExchanger.
type Client struct {
	baseURL string
	timeout time.Duration
	loc     *time.Location
	http    *http.Client
	tracer  trace.Tracer
}

// New creates a new Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		loc:     opts.Location,
		http:    opts.HTTPClient,
		tracer:  telemetry.Tracer("carparkapi"),
	}
}

type queryBody struct {
	ParkingStartTime string   `json:"parkingStartTime"`
	ParkingEndTime   string   `json:"parkingEndTime"`
	CarParkIDs       []string `json:"carParkIds"`
	LotType          string   `json:"lotType"`
	Key              string   `json:"key,omitempty"`
}

type envelope[T any] struct {
	Success *bool  `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (c *Client) body(q ports.CarparkQuery) queryBody {
	ids := q.IDs
	if ids == nil {
		ids = []string{}
	}
	return queryBody{
		ParkingStartTime: q.Window.Start.In(c.loc).Format(domain.WindowLayout),
		ParkingEndTime:   q.Window.End.In(c.loc).Format(domain.WindowLayout),
		CarParkIDs:       ids,
		LotType:          string(q.LotType),
	}
}

// QueryLots fetches live lot counts. A signed query carries the id-list key.
func (c *Client) QueryLots(ctx context.Context, q ports.CarparkQuery) ([]domain.LotsRecord, error) {
	b := c.body(q)
	if q.SignIDs {
		b.Key = LotsKey(b.CarParkIDs)
	}
	return post[[]domain.LotsRecord](ctx, c, EndpointLots, b, q)
}

// QueryRates fetches rate records with their descriptive fields.
func (c *Client) QueryRates(ctx context.Context, q ports.CarparkQuery) ([]domain.RateRecord, error) {
	return post[[]domain.RateRecord](ctx, c, EndpointRates, c.body(q), q)
}

// QueryInfo fetches static facility info.
func (c *Client) QueryInfo(ctx context.Context, q ports.CarparkQuery) ([]domain.InfoRecord, error) {
	return post[[]domain.InfoRecord](ctx, c, EndpointInfo, c.body(q), q)
}

type loginBody struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	Token string `json:"token"`
}

// Exchange trades a Google access token for the service's own session token.
func (c *Client) Exchange(ctx context.Context, accessToken, email string) (string, error) {
	data, err := post[*loginData](ctx, c, EndpointGoogleLogin, loginBody{Token: accessToken, Email: email}, ports.CarparkQuery{})
	if err != nil {
		return "", err
	}
	if data == nil || data.Token == "" {
		return "", errors.New("login failed: no token in response")
	}
	return data.Token, nil
}

// LotsKey is the hex md5 of the JSON-encoded id list.
func LotsKey(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(ids)
	sum := md5.Sum(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:])
}

func post[T any](ctx context.Context, c *Client, endpoint string, body any, q ports.CarparkQuery) (data T, err error) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanCarparkQuery, trace.WithAttributes(
		attribute.String(telemetry.AttrEndpoint, endpoint),
		attribute.Int(telemetry.AttrIDCount, len(q.IDs)),
		attribute.String(telemetry.AttrLotType, string(q.LotType)),
	))
	start := time.Now()
	defer func() {
		metrics.ObserveRemote(endpoint, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return data, fmt.Errorf("encode %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return data, fmt.Errorf("build %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return data, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return data, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return data, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "service reported failure"
		}
		return data, fmt.Errorf("%s: %s", endpoint, msg)
	}
	return env.Data, nil
}
