// Package projects reads the campaign catalog from the headless CMS. The
// ledger never owns campaign content, it only aggregates donations against
// project slugs, so the catalog is fetched on demand.
package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/service/flags"
)

type StrapiSource struct {
	client *http.Client
}

func NewStrapiSource() *StrapiSource {
	return &StrapiSource{client: &http.Client{Timeout: 15 * time.Second}}
}

// Projects lists the campaigns of one fund, or of all funds when fund is
// empty.
func (s *StrapiSource) Projects(ctx context.Context, fund campaign.FundSlug) ([]campaign.Project, error) {
	q := make(url.Values)
	if fund != "" {
		q.Set("filters[fundSlug][$eq]", string(fund))
	}
	q.Set("pagination[pageSize]", "100")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		flags.StrapiURL.Value()+"/api/projects?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+flags.StrapiAPIToken.Value())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not list projects: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("CMS responded with status %d", resp.StatusCode)
	}

	var out struct {
		Data []campaign.Project `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("could not decode project list: %w", err)
	}
	return out.Data, nil
}
