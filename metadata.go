package campaign

// DonationMetadata is the checkout context round-tripped through the payment
// processors. Processors store it as untyped key-value strings (booleans as
// 'true'/'false'), so the stringly representation is confined to
// ParseMetadata/Encode and the rest of the code sees typed fields.
type DonationMetadata struct {
	UserID     string
	DonorName  string
	DonorEmail string

	ProjectSlug string
	ProjectName string
	FundSlug    FundSlug

	IsMembership   bool
	MembershipTerm MembershipTerm
	IsSubscription bool
	TaxDeductible  bool

	GivePointsBack             bool
	ShowDonorNameOnLeaderboard bool
	DonorNameIsProfane         bool

	// StaticGeneratedForAPI marks invoices backing a persistent public
	// receive-address rather than a checkout session.
	StaticGeneratedForAPI bool
}

// Actionable reports whether the metadata identifies a checkout that
// originated from this platform. Events without both slugs belong to someone
// else's store and must be acknowledged without processing.
func (md DonationMetadata) Actionable() bool {
	return md.ProjectSlug != "" && md.FundSlug != ""
}

// ParseMetadata decodes the processor's key-value representation.
func ParseMetadata(kv map[string]string) DonationMetadata {
	return DonationMetadata{
		UserID:     kv["userId"],
		DonorName:  kv["donorName"],
		DonorEmail: kv["donorEmail"],

		ProjectSlug: kv["projectSlug"],
		ProjectName: kv["projectName"],
		FundSlug:    FundSlug(kv["fundSlug"]),

		IsMembership:   kv["isMembership"] == "true",
		MembershipTerm: MembershipTerm(kv["membershipTerm"]),
		IsSubscription: kv["isSubscription"] == "true",
		TaxDeductible:  kv["isTaxDeductible"] == "true",

		GivePointsBack:             kv["givePointsBack"] == "true",
		ShowDonorNameOnLeaderboard: kv["showDonorNameOnLeaderboard"] == "true",
		DonorNameIsProfane:         kv["donorNameIsProfane"] == "true",

		StaticGeneratedForAPI: kv["staticGeneratedForApi"] == "true",
	}
}

// Encode serializes the metadata back into the representation attached to
// checkout sessions and invoices.
func (md DonationMetadata) Encode() map[string]string {
	return map[string]string{
		"userId":     md.UserID,
		"donorName":  md.DonorName,
		"donorEmail": md.DonorEmail,

		"projectSlug": md.ProjectSlug,
		"projectName": md.ProjectName,
		"fundSlug":    string(md.FundSlug),

		"isMembership":    boolString(md.IsMembership),
		"membershipTerm":  string(md.MembershipTerm),
		"isSubscription":  boolString(md.IsSubscription),
		"isTaxDeductible": boolString(md.TaxDeductible),

		"givePointsBack":             boolString(md.GivePointsBack),
		"showDonorNameOnLeaderboard": boolString(md.ShowDonorNameOnLeaderboard),
		"donorNameIsProfane":         boolString(md.DonorNameIsProfane),

		"staticGeneratedForApi": boolString(md.StaticGeneratedForAPI),
	}
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
