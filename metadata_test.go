package campaign

import (
	"testing"
)

func TestParseMetadata(t *testing.T) {
	md := ParseMetadata(map[string]string{
		"userId":         "u1",
		"donorName":      "Jane",
		"donorEmail":     "jane@example.com",
		"projectSlug":    "fellowship",
		"projectName":    "Research Fellowship",
		"fundSlug":       "monero",
		"isMembership":   "true",
		"membershipTerm": "annually",
		"givePointsBack": "true",
	})

	if md.UserID != "u1" || md.DonorName != "Jane" {
		t.Errorf("identity fields not parsed: %+v", md)
	}
	if md.FundSlug != FundMonero {
		t.Errorf("fund = %q, want monero", md.FundSlug)
	}
	if !md.IsMembership || md.MembershipTerm != TermAnnually || !md.GivePointsBack {
		t.Errorf("boolean/term fields not parsed: %+v", md)
	}
	if md.IsSubscription || md.StaticGeneratedForAPI {
		t.Errorf("absent keys should parse as false: %+v", md)
	}
	if !md.Actionable() {
		t.Error("metadata with both slugs should be actionable")
	}
}

func TestMetadataActionable(t *testing.T) {
	tests := []struct {
		project, fund string
		want          bool
	}{
		{"slug", "monero", true},
		{"", "monero", false},
		{"slug", "", false},
		{"", "", false},
	}
	for _, test := range tests {
		md := DonationMetadata{ProjectSlug: test.project, FundSlug: FundSlug(test.fund)}
		if md.Actionable() != test.want {
			t.Errorf("Actionable(%q, %q) = %v, want %v", test.project, test.fund, !test.want, test.want)
		}
	}
}

func TestMetadataEncodeRoundTrip(t *testing.T) {
	md := DonationMetadata{
		UserID:                "u1",
		ProjectSlug:           "fellowship",
		ProjectName:           "Research Fellowship",
		FundSlug:              FundFiro,
		IsMembership:          true,
		MembershipTerm:        TermMonthly,
		GivePointsBack:        true,
		StaticGeneratedForAPI: true,
	}
	got := ParseMetadata(md.Encode())
	if got != md {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, md)
	}
}
