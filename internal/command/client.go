// Package command sends operator commands to the vehicle backend.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Actions understood by the backend.
const (
	Arm     = "arm"
	Disarm  = "disarm"
	Takeoff = "takeoff"
	Land    = "land"
)

// MessageTTL is how long a command result stays on screen.
const MessageTTL = 3 * time.Second

var (
	// ErrUnknownAction is returned before any request is made.
	ErrUnknownAction = errors.New("unknown command action")
	// ErrRejected wraps a non-2xx response.
	ErrRejected = errors.New("command rejected")
)

// Params carries optional action arguments.
type Params struct {
	AltitudeM float64 // takeoff only; zero means the backend default
}

// Result is the decoded backend response.
type Result struct {
	Action     string `json:"-"`
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Detail     string `json:"detail"`
	Error      string `json:"error"`
}

// Message is the text shown to the operator.
func (r Result) Message() string {
	switch {
	case r.Detail != "":
		return r.Detail
	case r.Error != "":
		return r.Error
	}
	return "Command sent"
}

// Client posts commands. It never retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

// NewClient creates a command client for the backend at baseURL.
func NewClient(baseURL, apiKey string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		log:     log.With("component", "command_client"),
	}
}

func validAction(a string) bool {
	switch a {
	case Arm, Disarm, Takeoff, Land:
		return true
	}
	return false
}

// Send posts one command. A non-2xx response yields a Result carrying the
// server message together with an error wrapping ErrRejected.
func (c *Client) Send(ctx context.Context, action string, p Params) (Result, error) {
	if !validAction(action) {
		return Result{Action: action}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	u := fmt.Sprintf("%s/api/v1/command/%s?token=%s", c.baseURL, action, url.QueryEscape(c.apiKey))

	var body io.Reader
	if action == Takeoff && p.AltitudeM > 0 {
		b, err := json.Marshal(map[string]float64{"altitude_m": p.AltitudeM})
		if err != nil {
			return Result{Action: action}, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return Result{Action: action}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("command failed", "action", action, "err", err)
		return Result{Action: action, Error: err.Error()}, fmt.Errorf("send %s: %w", action, err)
	}
	defer resp.Body.Close()

	res := Result{Action: action, StatusCode: resp.StatusCode}
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr != nil {
		c.log.Warn("reading command response failed", "action", action, "status", resp.StatusCode, "err", readErr)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &res); err != nil && res.Error == "" {
			res.Error = strings.TrimSpace(string(data))
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if res.Detail == "" && res.Error == "" {
			res.Error = resp.Status
		}
		c.log.Warn("command rejected", "action", action, "status", resp.StatusCode, "message", res.Message())
		return res, fmt.Errorf("%w: %s: %s", ErrRejected, action, res.Message())
	}
	if readErr != nil {
		res.Error = "response incomplete: " + readErr.Error()
		return res, fmt.Errorf("read %s response: %w", action, readErr)
	}
	c.log.Info("command sent", "action", action, "message", res.Message())
	return res, nil
}
