package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/genautapi/internal/observe"
)

// Geolocation defaults.
const (
	DefaultGeoEndpoint = "http://ip-api.com/json/"
	DefaultGeoTimeout  = 5 * time.Second
)

// Location is a coarse client location.
type Location struct {
	Country     string
	City        string
	CountryCode string
}

var (
	// LocalLocation is reported for loopback addresses without a lookup.
	LocalLocation = Location{Country: "Localhost", City: "Home", CountryCode: "LO"}

	// UnknownLocation is reported whenever a lookup fails.
	UnknownLocation = Location{Country: "Unknown", City: "Unknown", CountryCode: "UN"}
)

// Locator resolves a client address. Implementations never fail; they
// return [UnknownLocation] instead.
type Locator interface {
	Locate(ctx context.Context, ip string) Location
}

type staticLocator struct{}

func (staticLocator) Locate(context.Context, string) Location { return UnknownLocation }

// IPAPI resolves addresses with the ip-api.com JSON endpoint. Concurrent
// lookups of the same address share a single request.
type IPAPI struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	metrics  *observe.Metrics
	group    singleflight.Group
}

var _ Locator = (*IPAPI)(nil)

// IPAPIOption configures an [IPAPI].
type IPAPIOption func(*IPAPI)

// WithEndpoint overrides the lookup base URL. The address is appended to it.
func WithEndpoint(endpoint string) IPAPIOption {
	return func(g *IPAPI) {
		if endpoint != "" {
			g.endpoint = endpoint
		}
	}
}

// WithTimeout bounds every lookup. Defaults to [DefaultGeoTimeout].
func WithTimeout(d time.Duration) IPAPIOption {
	return func(g *IPAPI) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) IPAPIOption {
	return func(g *IPAPI) { g.client = c }
}

// WithGeoMetrics records lookups to m instead of [observe.DefaultMetrics].
func WithGeoMetrics(m *observe.Metrics) IPAPIOption {
	return func(g *IPAPI) { g.metrics = m }
}

// NewIPAPI creates an ip-api.com locator.
func NewIPAPI(opts ...IPAPIOption) *IPAPI {
	g := &IPAPI{
		endpoint: DefaultGeoEndpoint,
		timeout:  DefaultGeoTimeout,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Locate implements [Locator].
func (g *IPAPI) Locate(ctx context.Context, ip string) Location {
	switch ip {
	case "127.0.0.1", "localhost", "::1":
		return LocalLocation
	}

	v, _, _ := g.group.Do(ip, func() (any, error) {
		start := time.Now()
		loc, err := g.lookup(ctx, ip)
		g.metrics.RecordProviderCall(ctx, "ip-api", observe.KindGeo, time.Since(start), err)
		if err != nil {
			observe.Logger(ctx).Warn("leaderboard: geolocation failed", "ip", ip, "err", err)
			return UnknownLocation, nil
		}
		return loc, nil
	})
	return v.(Location)
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
}

func (g *IPAPI) lookup(ctx context.Context, ip string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+url.PathEscape(ip), nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo: build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo: status %d", resp.StatusCode)
	}
	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("geo: decode: %w", err)
	}
	if body.Status != "success" {
		return Location{}, fmt.Errorf("geo: lookup %s: %s", body.Status, body.Message)
	}

	loc := Location{Country: body.Country, City: body.City, CountryCode: body.CountryCode}
	if loc.Country == "" {
		loc.Country = UnknownLocation.Country
	}
	if loc.City == "" {
		loc.City = UnknownLocation.City
	}
	if loc.CountryCode == "" {
		loc.CountryCode = UnknownLocation.CountryCode
	}
	return loc, nil
}
