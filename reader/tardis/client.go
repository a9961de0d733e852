package tardis

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arbiflow/logger"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.tardis.dev"
	userAgent      = "arbiflow/1.0"

	// The data-feeds endpoint serves replay data in one minute slices.
	sliceInterval = time.Minute
)

// Client replays historical exchange messages from the tardis.dev
// data-feeds API. Responses are gzipped NDJSON where every line carries
// the local timestamp followed by the original exchange payload.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// ReplayOptions selects the exchange, time range and channel filter for a
// replay session. Symbols are passed in the exchange's native notation.
type ReplayOptions struct {
	Exchange string
	From     time.Time
	To       time.Time
	Channel  string
	Symbols  []string
}

// MessageFunc receives every replayed message together with the local
// timestamp recorded at capture time. Returning an error stops the replay.
type MessageFunc func(localTS time.Time, payload []byte) error

// Replayer is implemented by both the HTTP client and the tardis-machine
// WebSocket client.
type Replayer interface {
	Replay(ctx context.Context, opts ReplayOptions, fn MessageFunc) error
}

func NewClient(baseURL, apiKey string, requestsPerSecond float64, burst int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: userAgentTransport{agent: userAgent, base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		log:     logger.GetLogger(),
	}
}

type replayFilter struct {
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols,omitempty"`
}

// Replay streams all messages in [opts.From, opts.To) to fn in capture
// order. Minute slices are fetched sequentially so ordering within an
// exchange is preserved.
func (c *Client) Replay(ctx context.Context, opts ReplayOptions, fn MessageFunc) error {
	if opts.Exchange == "" {
		return fmt.Errorf("replay requires an exchange")
	}
	if !opts.To.After(opts.From) {
		return fmt.Errorf("replay range is empty: from=%s to=%s", opts.From, opts.To)
	}

	log := c.log.WithComponent("tardis_replay").WithFields(logger.Fields{
		"exchange": opts.Exchange,
		"channel":  opts.Channel,
		"from":     opts.From.Format(time.RFC3339),
		"to":       opts.To.Format(time.RFC3339),
	})
	log.Info("starting replay")

	filters, err := json.Marshal([]replayFilter{{Channel: opts.Channel, Symbols: opts.Symbols}})
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}

	slices := int(opts.To.Sub(opts.From) / sliceInterval)
	if opts.To.Sub(opts.From)%sliceInterval != 0 {
		slices++
	}

	total := 0
	for offset := 0; offset < slices; offset++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.fetchSlice(ctx, opts, string(filters), offset, fn)
		if err != nil {
			return fmt.Errorf("slice %d: %w", offset, err)
		}
		total += n
	}

	log.WithField("messages", total).Info("replay finished")
	return nil
}

func (c *Client) fetchSlice(ctx context.Context, opts ReplayOptions, filters string, offset int, fn MessageFunc) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("from", opts.From.UTC().Format("2006-01-02"))
	q.Set("filters", filters)
	q.Set("offset", fmt.Sprintf("%d", offset))

	endpoint := fmt.Sprintf("%s/v1/data-feeds/%s?%s", c.baseURL, url.PathEscape(opts.Exchange), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		c.log.WithComponent("tardis_replay").Warn("rate limited by data-feeds API, backing off")
		time.Sleep(time.Second)
		return c.fetchSlice(ctx, opts, filters, offset, fn)
	default:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return 0, fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var reader io.Reader = res.Body
	if strings.Contains(res.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(res.Body)
		if err != nil {
			return 0, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return c.scanMessages(reader, fn)
}

// scanMessages parses NDJSON lines of the form "<localTimestamp> <payload>".
func (c *Client) scanMessages(r io.Reader, fn MessageFunc) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		sep := bytes.IndexByte(line, ' ')
		if sep < 0 {
			c.log.WithComponent("tardis_replay").WithField("line", string(line)).Warn("skipping malformed replay line")
			continue
		}

		localTS, err := time.Parse(time.RFC3339Nano, string(line[:sep]))
		if err != nil {
			c.log.WithComponent("tardis_replay").WithError(err).Warn("skipping line with invalid timestamp")
			continue
		}

		payload := make([]byte, len(line)-sep-1)
		copy(payload, line[sep+1:])

		if err := fn(localTS, payload); err != nil {
			return count, err
		}
		logger.IncrementReplayRead(len(payload))
		count++
	}
	return count, scanner.Err()
}
