package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/MAGICGrants/campaign-site/internal/config"
)

// flagDescription deliberately carries no value: several flags hold webhook
// secrets and API keys.
type flagDescription struct {
	InternalName string `json:"internal_name"`
	HumanName    string `json:"human_name"`
}

// listFlags inventories the runtime flag registry, for operators wondering
// what CS_FLAG_OVERRIDES and the flag file can address.
func (s *API) listFlags(w http.ResponseWriter, r *http.Request) {
	var out []flagDescription
	appendFlags(&out, config.GetFlags[bool]())
	appendFlags(&out, config.GetFlags[string]())
	appendFlags(&out, config.GetFlags[int64]())
	appendFlags(&out, config.GetFlags[float64]())
	appendFlags(&out, config.GetFlags[map[string]string]())
	slices.SortFunc(out, func(a, b flagDescription) int {
		return strings.Compare(a.InternalName, b.InternalName)
	})
	returnData(w, out)
}

func appendFlags[T any](out *[]flagDescription, flags []config.Flag[T]) {
	for _, f := range flags {
		*out = append(*out, flagDescription{f.InternalName(), f.HumanName()})
	}
}
