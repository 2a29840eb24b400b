package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient is a narrow net/http implementation of Client against a vendor
// endpoint. The vendor's exact request/response shape is out of scope (spec
// §1 treats the vendor vision service as an external collaborator); this is
// a plausible minimal envelope so the rest of the pipeline has something
// concrete to drive in integration tests.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewHTTPClient constructs an HTTPClient. It returns ErrAuthMissing
// immediately if apiKey is empty — no placeholder/sentinel key is accepted,
// and no code path here returns synthesized OCR data when unauthenticated.
func NewHTTPClient(baseURL, apiKey string) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAuthMissing
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
		Timeout:    30 * time.Second,
	}, nil
}

type handIDResponse struct {
	HandID string `json:"hand_id"`
}

type playersResponse struct {
	Players          []string `json:"players"`
	Stacks           []int    `json:"stacks"`
	DealerPlayer     string   `json:"dealer_player"`
	SmallBlindPlayer string   `json:"small_blind_player"`
	BigBlindPlayer   string   `json:"big_blind_player"`
}

func (c *HTTPClient) ExtractHandID(ctx context.Context, imageRef string) (string, error) {
	var out handIDResponse
	if err := c.call(ctx, "/v1/extract-hand-id", imageRef, &out); err != nil {
		return "", err
	}
	return out.HandID, nil
}

func (c *HTTPClient) ExtractPlayers(ctx context.Context, imageRef string) (PlayersPayload, error) {
	var out playersResponse
	if err := c.call(ctx, "/v1/extract-players", imageRef, &out); err != nil {
		return PlayersPayload{}, err
	}
	return PlayersPayload{
		Players:          out.Players,
		Stacks:           out.Stacks,
		DealerPlayer:     out.DealerPlayer,
		SmallBlindPlayer: out.SmallBlindPlayer,
		BigBlindPlayer:   out.BigBlindPlayer,
	}, nil
}

func (c *HTTPClient) call(ctx context.Context, path, imageRef string, out any) error {
	if c.APIKey == "" {
		return ErrAuthMissing
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"image_ref": imageRef})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthMissing
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: vendor status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: vendor status %d", ErrPermanent, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrPermanent, err)
	}
	return nil
}
