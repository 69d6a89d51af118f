// ABOUTME: HTTP time fetchers for arbitrary servers and JSON time endpoints
// ABOUTME: Reads the Date header or a serverTime/datetime field into a time sample
package timesource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/checktime/checktime-go/internal/protocol"
	internalsync "github.com/checktime/checktime-go/internal/sync"
)

// Kind names a fetcher implementation
type Kind string

const (
	KindDate      Kind = "date"
	KindJSON      Kind = "json"
	KindWebSocket Kind = "websocket"
)

// DefaultWorldTimeURL serves Korea Standard Time as {"datetime": ...}
const DefaultWorldTimeURL = "https://worldtimeapi.org/api/timezone/Asia/Seoul"

const userAgent = "checktime-go"

// DateFetcher samples any HTTP server through its Date response header
type DateFetcher struct {
	URL    string
	Method string // HEAD or GET (default: HEAD)
	Client *http.Client
	Clock  internalsync.LocalClock
}

// NewDateFetcher creates a Date header fetcher for url
func NewDateFetcher(url string) *DateFetcher {
	return &DateFetcher{URL: NormalizeURL(url), Method: http.MethodHead}
}

// Fetch issues one request. A response without a usable Date header yields a
// sample with no remote time, which the estimator rejects.
func (f *DateFetcher) Fetch(ctx context.Context) (internalsync.Sample, error) {
	method := f.Method
	if method == "" {
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(ctx, method, f.URL, nil)
	if err != nil {
		return internalsync.Sample{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	clock := clockOrSystem(f.Clock)
	sent := clock.Now()
	resp, err := httpClient(f.Client).Do(req)
	if err != nil {
		return internalsync.Sample{}, err
	}
	received := clock.Now()
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	sample := internalsync.Sample{
		LocalSentAt:     sent,
		LocalReceivedAt: received,
		Source:          f.URL,
	}
	if date := resp.Header.Get("Date"); date != "" {
		if t, err := http.ParseTime(date); err == nil {
			sample.RemoteClaimedAt = t
		}
	}
	return sample, nil
}

// JSONFetcher samples a JSON time endpoint. It understands this project's
// /api/time response and WorldTimeAPI's datetime field.
type JSONFetcher struct {
	URL    string
	Client *http.Client
	Clock  internalsync.LocalClock
}

// NewJSONFetcher creates a JSON endpoint fetcher for url
func NewJSONFetcher(url string) *JSONFetcher {
	return &JSONFetcher{URL: NormalizeURL(url)}
}

type jsonTimeBody struct {
	Success    *bool  `json:"success"`
	ServerTime string `json:"serverTime"`
	Datetime   string `json:"datetime"`
}

// Fetch issues one GET. success=false or a missing time field yields a sample
// with no remote time.
func (f *JSONFetcher) Fetch(ctx context.Context) (internalsync.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return internalsync.Sample{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	clock := clockOrSystem(f.Clock)
	sent := clock.Now()
	resp, err := httpClient(f.Client).Do(req)
	if err != nil {
		return internalsync.Sample{}, err
	}
	received := clock.Now()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return internalsync.Sample{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var body jsonTimeBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return internalsync.Sample{}, fmt.Errorf("failed to decode time response: %w", err)
	}

	sample := internalsync.Sample{
		LocalSentAt:     sent,
		LocalReceivedAt: received,
		Source:          f.URL,
	}
	if body.Success != nil && !*body.Success {
		return sample, nil
	}

	raw := body.ServerTime
	if raw == "" {
		raw = body.Datetime
	}
	if raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			sample.RemoteClaimedAt = t
		}
	}
	return sample, nil
}

// CompareClient calls a time authority's comparison API
type CompareClient struct {
	BaseURL string
	Client  *http.Client
}

// NewCompareClient creates a client for the authority at baseURL. A bare
// host:port is treated as plain http.
func NewCompareClient(baseURL string) *CompareClient {
	baseURL = strings.TrimSpace(baseURL)
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &CompareClient{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// Compare asks the authority to compare targetURL against its own clock
func (c *CompareClient) Compare(ctx context.Context, targetURL string) (*protocol.Comparison, error) {
	payload, err := json.Marshal(protocol.CompareRequest{TargetURL: targetURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/time/compare", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient(c.Client).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body protocol.CompareResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("API error %s: failed to decode response: %w", resp.Status, err)
	}
	if !body.Success || body.Data == nil {
		msg := body.Error
		if msg == "" {
			msg = "comparison failed"
		}
		return nil, fmt.Errorf("API error %s: %s", resp.Status, msg)
	}
	return body.Data, nil
}

// NormalizeURL adds an https scheme to bare hosts
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

func clockOrSystem(c internalsync.LocalClock) internalsync.LocalClock {
	if c != nil {
		return c
	}
	return internalsync.SystemClock()
}
