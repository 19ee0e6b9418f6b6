package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rentview/internal/models"
)

// Client talks to a remote AppointmentService over JSON/HTTP. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "appointments_client").Logger(),
	}
}

type listResponse struct {
	Appointments []json.RawMessage `json:"appointments"`
}

// Create submits a new appointment.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*models.Appointment, error) {
	var out models.Appointment
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/appointments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListForRequester lists appointments created by requesterRef.
func (c *Client) ListForRequester(ctx context.Context, requesterRef string, f Filter) ([]models.Appointment, error) {
	return c.list(ctx, "/api/v1/requesters/"+url.PathEscape(requesterRef)+"/appointments", f)
}

// ListForOwner lists appointments for rooms controlled by ownerRef.
func (c *Client) ListForOwner(ctx context.Context, ownerRef string, f Filter) ([]models.Appointment, error) {
	return c.list(ctx, "/api/v1/owners/"+url.PathEscape(ownerRef)+"/appointments", f)
}

// Transition applies action to the appointment.
func (c *Client) Transition(ctx context.Context, id string, action models.Action, message string) (*models.Appointment, error) {
	var out models.Appointment
	body := TransitionRequest{Action: action, Message: message}
	path := "/api/v1/appointments/" + url.PathEscape(id) + "/transitions"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove deletes a terminal appointment.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/appointments/"+url.PathEscape(id), nil, nil)
}

func (c *Client) list(ctx context.Context, path string, f Filter) ([]models.Appointment, error) {
	q := EncodeFilter(f)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Appointment, 0, len(resp.Appointments))
	for _, raw := range resp.Appointments {
		var a models.Appointment
		if err := json.Unmarshal(raw, &a); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable appointment row")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	setActorHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
