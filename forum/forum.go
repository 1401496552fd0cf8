// Package forum integrates with the Privacy Guides Discourse forum. Paying
// members of that fund get added to a members-only group; the integration is
// best-effort and must never affect the durability of the ledger.
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MAGICGrants/campaign-site/service/flags"
)

type Client struct {
	client *http.Client
}

func NewClient() *Client {
	return &Client{client: &http.Client{Timeout: 10 * time.Second}}
}

// AddUserToMembersGroup adds a platform user to the membership group. Forum
// accounts are linked through Discourse Connect, so the platform user id is
// the forum's external id.
func (c *Client) AddUserToMembersGroup(ctx context.Context, userID string) error {
	username, err := c.usernameByExternalID(ctx, userID)
	if err != nil {
		return err
	}

	body := strings.NewReader(url.Values{"usernames": {username}}.Encode())
	endpoint := fmt.Sprintf("%s/groups/%s/members.json", flags.DiscourseURL.Value(), flags.DiscourseMembershipGroupID.Value())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not add %s to members group: %w", username, err)
	}
	defer resp.Body.Close()
	// 422 means the user is already in the group, which is fine on renewals
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnprocessableEntity {
		return fmt.Errorf("forum responded with status %d adding %s to members group", resp.StatusCode, username)
	}
	return nil
}

func (c *Client) usernameByExternalID(ctx context.Context, externalID string) (string, error) {
	endpoint := fmt.Sprintf("%s/u/by-external/%s.json", flags.DiscourseURL.Value(), url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not look up forum user %s: %w", externalID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("forum responded with status %d looking up user %s", resp.StatusCode, externalID)
	}

	var out struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.User.Username == "" {
		return "", fmt.Errorf("no forum account linked to user %s", externalID)
	}
	return out.User.Username, nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("Api-Key", flags.DiscourseAPIKey.Value())
	req.Header.Set("Api-Username", flags.DiscourseAPIUsername.Value())
}
