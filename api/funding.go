package api

import (
	"log/slog"
	"net/http"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/service"
	"github.com/gorilla/schema"
)

var decoder *schema.Decoder

func init() {
	decoder = schema.NewDecoder()
	decoder.SetAliasTag("json")
	// Public endpoint, crawlers tack arbitrary parameters onto it.
	decoder.IgnoreUnknownKeys(true)
}

func (s *API) fundingRequired(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	var q service.FundingQuery
	if err := decoder.Decode(&q, r.Form); err != nil {
		errorData(w, campaign.Statusf(400, "Invalid request parameters"))
		return
	}
	if err := q.Validate(); err != nil {
		errorData(w, err)
		return
	}

	report, err := s.base.FundingRequired(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "Could not build funding report", slog.Any("err", err))
		errorData(w, err)
		return
	}
	returnData(w, report)
}
