// Package remote implements the HTTP client for a media-automation
// instance's classification rule and scoring profile API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"templarr/internal/common"
	"templarr/internal/model"
	"templarr/internal/service"
)

// Client talks to one instance's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Wire types for the instance API. Rules created by this tool carry their
// external id in the payload; that marker is how a remote rule is recognized
// as managed on later syncs.
type remoteFormat struct {
	Conditions map[string]bool `json:"conditions,omitempty"`
	Name       string          `json:"name"`
	ExternalID string          `json:"externalId,omitempty"`
	ID         int64           `json:"id,omitempty"`
	Score      int             `json:"score"`
}

type remoteProfile struct {
	Cutoff      string `json:"cutoff"`
	ID          int64  `json:"id"`
	MinScore    int    `json:"minFormatScore"`
	CutoffScore int    `json:"cutoffFormatScore"`
}

// NewClient creates a client for one instance.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Factory adapts NewClient to the service.ClientFactory signature.
func Factory(instance *model.Instance) service.InstanceClient {
	return NewClient(instance.URL, instance.APIKey)
}

// FetchState snapshots the instance's rules and scoring profile. Managed
// rules are keyed by external id; foreign rules by their remote name.
func (c *Client) FetchState(ctx context.Context) (*model.RemoteState, error) {
	var formats []remoteFormat
	if err := c.do(ctx, http.MethodGet, "/api/v3/customformat", nil, &formats); err != nil {
		return nil, err
	}

	var profiles []remoteProfile
	if err := c.do(ctx, http.MethodGet, "/api/v3/qualityprofile", nil, &profiles); err != nil {
		return nil, err
	}

	state := &model.RemoteState{
		FetchedAt: time.Now().UTC(),
		Rules:     make(map[string]model.RemoteRule, len(formats)),
	}
	for _, format := range formats {
		rule := model.RemoteRule{
			RemoteID:       format.ID,
			ExternalID:     format.ExternalID,
			Name:           format.Name,
			Score:          format.Score,
			ConditionFlags: format.Conditions,
			Managed:        format.ExternalID != "",
		}
		key := format.ExternalID
		if key == "" {
			key = format.Name
		}
		state.Rules[key] = rule
	}
	if len(profiles) > 0 {
		state.Profile = model.RemoteProfile{
			RemoteID:    profiles[0].ID,
			Cutoff:      profiles[0].Cutoff,
			MinScore:    profiles[0].MinScore,
			CutoffScore: profiles[0].CutoffScore,
		}
	}
	return state, nil
}

// CreateRule creates a managed rule and returns its remote id.
func (c *Client) CreateRule(ctx context.Context, create model.RuleCreate) (int64, error) {
	body := remoteFormat{
		Name:       create.Name,
		ExternalID: create.ExternalID,
		Score:      create.Score,
		Conditions: create.ConditionFlags,
	}
	var created remoteFormat
	if err := c.do(ctx, http.MethodPost, "/api/v3/customformat", body, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// UpdateRule updates a managed rule in place.
func (c *Client) UpdateRule(ctx context.Context, update model.RuleUpdate) error {
	body := remoteFormat{
		ID:         update.RemoteID,
		Name:       update.Name,
		ExternalID: update.ExternalID,
		Score:      update.NewScore,
		Conditions: update.NewConditions,
	}
	path := fmt.Sprintf("/api/v3/customformat/%d", update.RemoteID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// DeleteRule deletes a rule by its remote id.
func (c *Client) DeleteRule(ctx context.Context, remoteID int64) error {
	path := fmt.Sprintf("/api/v3/customformat/%d", remoteID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateProfile updates the instance's scoring profile.
func (c *Client) UpdateProfile(ctx context.Context, profile model.ScoringProfile, remoteID int64) error {
	body := remoteProfile{
		ID:          remoteID,
		Cutoff:      profile.Cutoff,
		MinScore:    profile.MinScore,
		CutoffScore: profile.CutoffScore,
	}
	path := fmt.Sprintf("/api/v3/qualityprofile/%d", remoteID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// do performs one API call, mapping failures into the shared error taxonomy:
// network failures and 5xx responses are transient, 429 is a rate limit,
// 404 and 409 map to the dedicated sentinels, other 4xx are permanent.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &common.RemoteError{Op: op, Err: err, Transient: true}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, common.ErrRemoteNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, common.ErrRemoteAlreadyExists)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", op, common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return &common.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server error"),
			Transient:  true,
		}
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &common.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(payload))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
