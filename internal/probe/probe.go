package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/angeloszaimis/fleet-health/internal/fanin"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultScheme          = "https"
	DefaultCredentialParam = "clientaccesskey"

	maxBodyBytes = 1 << 20
)

// ErrMalformedBody is recorded when a dependency answers with something other than JSON.
var ErrMalformedBody = errors.New("malformed ping response")

// Options configures a Dispatcher. Zero values fall back to the defaults.
type Options struct {
	Scheme             string
	Timeout            time.Duration
	CredentialParam    string
	InsecureSkipVerify bool

	// Client overrides the HTTP client built from the options.
	Client *http.Client
}

// Dispatcher probes services concurrently.
type Dispatcher struct {
	client          *http.Client
	scheme          string
	timeout         time.Duration
	credentialParam string
	logger          *slog.Logger
}

// NewDispatcher builds a Dispatcher. HTTPS probes negotiate HTTP/2 when the
// dependency offers it.
func NewDispatcher(opts Options, logger *slog.Logger) (*Dispatcher, error) {
	if opts.Scheme == "" {
		opts.Scheme = DefaultScheme
	}
	if opts.Scheme != "http" && opts.Scheme != "https" {
		return nil, fmt.Errorf("unsupported probe scheme %q", opts.Scheme)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CredentialParam == "" {
		opts.CredentialParam = DefaultCredentialParam
	}

	client := opts.Client
	if client == nil {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: opts.InsecureSkipVerify,
			},
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
		}

		client = &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		}
	}

	return &Dispatcher{
		client:          client,
		scheme:          opts.Scheme,
		timeout:         opts.Timeout,
		credentialParam: opts.CredentialParam,
		logger:          logger,
	}, nil
}

// Timeout returns the per-probe timeout.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// ProbeAll probes every descriptor concurrently and returns one outcome per
// descriptor, in input order. credential is attached only to descriptors
// with AuthRequired set.
func (d *Dispatcher) ProbeAll(ctx context.Context, descriptors []service.Descriptor, credential string) []service.Outcome {
	return fanin.Join(descriptors,
		func(desc service.Descriptor) service.Outcome {
			return d.Probe(ctx, desc, credential)
		},
		func(desc service.Descriptor, err error) service.Outcome {
			d.logger.Error("Probe crashed",
				slog.String("service", desc.Name),
				slog.Any("err", err))
			return service.Outcome{Descriptor: desc, Err: err.Error()}
		},
	)
}

// Probe issues a single liveness request.
func (d *Dispatcher) Probe(ctx context.Context, desc service.Descriptor, credential string) service.Outcome {
	outcome := service.Outcome{Descriptor: desc}

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	target := d.pingURL(desc, credential)

	d.logger.Debug("Probing service",
		slog.String("service", desc.Name),
		slog.String("address", desc.HostPort()),
		slog.Bool("auth", desc.AuthRequired))

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		outcome.Err = err.Error()
		return outcome
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := d.client.Do(req)
	if err != nil {
		outcome.Latency = time.Since(start)
		outcome.TimedOut = isTimeout(err)
		outcome.Err = redact(err, credential)
		return outcome
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	outcome.Latency = time.Since(start)
	if err != nil {
		outcome.TimedOut = isTimeout(err)
		outcome.Err = redact(err, credential)
		return outcome
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		outcome.Err = fmt.Sprintf("unexpected status %d", res.StatusCode)
		return outcome
	}

	if !json.Valid(body) {
		outcome.Err = ErrMalformedBody.Error()
		return outcome
	}

	outcome.Reachable = true
	return outcome
}

func (d *Dispatcher) pingURL(desc service.Descriptor, credential string) *url.URL {
	u := &url.URL{
		Scheme: d.scheme,
		Host:   desc.HostPort(),
		Path:   "/ping",
	}

	if desc.AuthRequired {
		q := url.Values{}
		q.Set(d.credentialParam, credential)
		u.RawQuery = q.Encode()
	}

	return u
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redact strips the request URL (and with it the credential) from client errors.
func redact(err error, credential string) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if credential == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), credential, "REDACTED")
}
