// Package doctor looks up doctors in the external doctor directory.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/connectmydoc/patient-api/internal/config"
	"github.com/connectmydoc/patient-api/pkg/circuitbreaker"
	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
	"github.com/connectmydoc/patient-api/pkg/metrics"
)

const serviceName = "doctor directory"

// Directory answers whether a doctor id is known.
type Directory interface {
	Exists(ctx context.Context, doctorID int) (bool, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	cache      *cache.Cache
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient builds a directory client. A zero cache TTL disables caching.
func NewClient(cfg config.DoctorConfig, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger = logger.With().Str("component", "doctor_client").Logger()
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "doctor-directory",
			MaxFailures: cfg.BreakerFailures,
			Timeout:     cfg.BreakerCooldown,
			Logger:      &logger,
		}),
		metrics: m,
		logger:  logger,
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// Exists reports true for a 2xx answer and false for 404. Any other status
// is an ExternalService error; a transport failure, timeout or open breaker
// is an Unavailable error.
func (c *Client) Exists(ctx context.Context, doctorID int) (bool, error) {
	key := strconv.Itoa(doctorID)
	if c.cache != nil {
		if _, ok := c.cache.Get(key); ok {
			c.metrics.ObserveDoctorLookup("cache_hit", time.Time{})
			return true, nil
		}
	}

	url := fmt.Sprintf("%s/api/Doctor/%d", c.baseURL, doctorID)
	start := time.Now()

	var status int
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		status = resp.StatusCode
		return nil
	})
	if err != nil {
		c.metrics.ObserveDoctorLookup("unreachable", start)
		c.logger.Warn().Err(err).Int("doctor_id", doctorID).Msg("doctor directory unreachable")
		return false, apperrors.Unavailable(serviceName, err)
	}

	switch {
	case status >= 200 && status < 300:
		c.metrics.ObserveDoctorLookup("found", start)
		if c.cache != nil {
			c.cache.Set(key, true, cache.DefaultExpiration)
		}
		return true, nil
	case status == http.StatusNotFound:
		c.metrics.ObserveDoctorLookup("not_found", start)
		return false, nil
	default:
		c.metrics.ObserveDoctorLookup("error", start)
		c.logger.Error().Int("doctor_id", doctorID).Int("status", status).Msg("unexpected doctor directory response")
		return false, apperrors.ExternalService(serviceName, fmt.Errorf("status %d", status))
	}
}
