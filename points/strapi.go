package points

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/service/flags"
)

// StrapiStore talks to the /points collection of the headless CMS. The CMS
// stores numeric fields as strings, which stays confined to this file.
type StrapiStore struct {
	client *http.Client
}

var _ Store = &StrapiStore{}

func NewStrapiStore() *StrapiStore {
	return &StrapiStore{client: &http.Client{Timeout: 15 * time.Second}}
}

type strapiPoint struct {
	BalanceChange string            `json:"balanceChange"`
	Balance       string            `json:"balance"`
	UserID        string            `json:"userId"`
	DonationID    string            `json:"donationId,omitempty"`
	Perk          string            `json:"perk,omitempty"`
	Order         string            `json:"order,omitempty"`
	ProjectName   string            `json:"donationProjectName,omitempty"`
	ProjectSlug   string            `json:"donationProjectSlug,omitempty"`
	FundSlug      campaign.FundSlug `json:"donationFundSlug,omitempty"`
	CreatedAt     time.Time         `json:"createdAt,omitempty"`
}

func (s *StrapiStore) LatestEntry(ctx context.Context, userID string) (*campaign.PointEntry, error) {
	q := make(url.Values)
	q.Set("filters[userId][$eq]", userID)
	q.Set("sort", "createdAt:desc")
	q.Set("pagination[pageSize]", "1")

	var out struct {
		Data []strapiPoint `json:"data"`
	}
	if err := s.do(ctx, http.MethodGet, "/points?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}

	p := out.Data[0]
	balance, err := strconv.ParseInt(p.Balance, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("CMS returned unparsable balance %q for user %s: %w", p.Balance, userID, err)
	}
	change, _ := strconv.ParseInt(p.BalanceChange, 10, 64)

	return &campaign.PointEntry{
		UserID:        p.UserID,
		BalanceChange: change,
		Balance:       balance,
		DonationID:    p.DonationID,
		PerkID:        p.Perk,
		OrderID:       p.Order,
		ProjectName:   p.ProjectName,
		ProjectSlug:   p.ProjectSlug,
		FundSlug:      p.FundSlug,
		CreatedAt:     p.CreatedAt,
	}, nil
}

func (s *StrapiStore) CreateEntry(ctx context.Context, entry *campaign.PointEntry) error {
	body := struct {
		Data strapiPoint `json:"data"`
	}{Data: strapiPoint{
		BalanceChange: formatInt(entry.BalanceChange),
		Balance:       formatInt(entry.Balance),
		UserID:        entry.UserID,
		DonationID:    entry.DonationID,
		Perk:          entry.PerkID,
		Order:         entry.OrderID,
		ProjectName:   entry.ProjectName,
		ProjectSlug:   entry.ProjectSlug,
		FundSlug:      entry.FundSlug,
	}}
	return s.do(ctx, http.MethodPost, "/points", body, nil)
}

func (s *StrapiStore) do(ctx context.Context, method, path string, body any, out any) error {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, flags.StrapiURL.Value()+"/api"+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+flags.StrapiAPIToken.Value())
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("CMS responded with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
