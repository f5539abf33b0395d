// Package directory talks to the surrounding system's user-identity
// service to confirm that a contact value belongs to a user. The
// marketplace owns user profiles; this engine only asks questions.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"otp/internal/domain"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type ownsContactResponse struct {
	Owned bool `json:"owned"`
}

func (c *Client) OwnsContact(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (bool, error) {
	u := fmt.Sprintf("%s/internal/users/%s/contacts/verify?channel=%s&contact=%s",
		c.baseURL, userID, channel, url.QueryEscape(contactValue))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var body ownsContactResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Owned, nil
}
