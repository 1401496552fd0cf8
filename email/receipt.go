package email

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/internal/config"
	"github.com/MAGICGrants/campaign-site/service/flags"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var receiptStyle = `<style>
html {
	display: flex;
}

body {
	max-width: 700px;
	padding: 20px;
	margin: 0 auto;
	font-family: sans-serif;
	background-color: #F1F5FF;
}

a {
	color: #3a76f0;
}

pre {
	word-break: break-all;
	white-space: pre-wrap;
}
</style>

`

var mdRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

const checked, unchecked = "☑️", "⬜"

// DonationConfirmationParams carries everything the receipt template needs.
// The attestation is rendered verbatim so the recipient can verify it without
// reconstructing the message.
type DonationConfirmationParams struct {
	To        string
	DonorName string
	Donation  *campaign.Donation

	AttestationMessage   string
	AttestationSignature string
}

// DonationConfirmation builds the donation receipt mail. The wording doubles
// as the 501(c)(3) acknowledgment letter, so the cash/in-kind checkboxes and
// the goods-or-services statement must stay consistent with what was actually
// recorded on the ledger entry.
func DonationConfirmation(p *DonationConfirmationParams) (*campaign.MailerMessage, error) {
	d := p.Donation
	fundName := d.FundSlug.Title()
	// Donor name and project name are donor-controlled strings round-tripped
	// through processor metadata, so they get stripped of markup before being
	// rendered into the receipt.
	donorName := sanitize(p.DonorName)
	projectName := sanitize(d.ProjectName)

	var b strings.Builder
	b.WriteString("# Donation receipt\n\n")
	b.WriteString("Thank you for your donation to MAGIC Grants! Your donation supports our charitable mission.\n\n")

	if d.IsMembership() {
		fmt.Fprintf(&b, "You donated to: %s\n\n", fundName)
	}
	if projectName != "" {
		fmt.Fprintf(&b, "You supported this campaign: %s\n\n", projectName)
	}
	if d.IsMembership() {
		renews := "will not"
		if d.StripeSubscriptionID != nil {
			renews = "will"
		}
		term := "annual"
		if d.MembershipTerm != nil && *d.MembershipTerm == campaign.TermMonthly {
			term = "monthly"
		}
		fmt.Fprintf(&b, "You purchased a %s membership for the %s.\nThis membership %s renew automatically. Easily manage your membership by logging into your account at donate.magicgrants.org.\n\n", term, fundName, renews)
	}

	b.WriteString("Please see the full details on your donation receipt below:\n\n")
	b.WriteString("MAGIC Grants is a 501(c)(3) public charity. This serves as your donation receipt. Donations to MAGIC Grants are tax deductible to the extent allowable by law.\n\n")
	fmt.Fprintf(&b, "Donation Date: %s\n\n", time.Now().Format("2006-1-2"))
	fmt.Fprintf(&b, "Donor Information:\n%s\n\n", donorName)

	b.WriteString("MAGIC Grants acknowledges and expresses appreciation for the following contribution:\n\n")
	if d.PaidWithCrypto() {
		fmt.Fprintf(&b, "- %s Cash or bank transfer donation amount: $0.00\n", unchecked)
		fmt.Fprintf(&b, "- %s In-kind (non-fiat) donation description: %s\n\n", checked, cryptoDescription(d.CryptoPayments))
	} else {
		fmt.Fprintf(&b, "- %s Cash or bank transfer donation amount: $%s\n", checked, d.GrossFiatAmount.StringFixed(2))
		fmt.Fprintf(&b, "- %s In-kind (non-fiat) donation description: -\n\n", unchecked)
	}

	if d.FundSlug == campaign.FundGeneral {
		b.WriteString("Description and/or restrictions: None\n\n")
	} else {
		fmt.Fprintf(&b, "Description and/or restrictions: Donation to the %s\n\n", fundName)
	}

	b.WriteString("The following describes the context of your donation:\n\n")
	if d.PointsAdded > 0 {
		value := float64(d.PointsAdded) * flags.PointsRedeemPriceUSD.Value()
		fmt.Fprintf(&b, "- %s No goods or services were received in exchange for your generous donation.\n", unchecked)
		fmt.Fprintf(&b, "- %s In connection with your generous donation, you received %s points, valued at approximately $%.2f.\n\n", checked, formatPoints(d.PointsAdded), value)
	} else {
		fmt.Fprintf(&b, "- %s No goods or services were received in exchange for your generous donation.\n", checked)
		fmt.Fprintf(&b, "- %s In connection with your generous donation, you received 0 points.\n\n", unchecked)
	}

	if d.PaidWithCrypto() {
		b.WriteString("If you wish to receive a tax deduction for a cryptocurrency donation over $500, you MUST complete [Form 8283](https://www.irs.gov/pub/irs-pdf/f8283.pdf) and send the completed form to [info@magicgrants.org](mailto:info@magicgrants.org) to qualify for a deduction.\n\n")
	}

	b.WriteString("### Signed attestation\n\n")
	fmt.Fprintf(&b, "Message\n```\n%s\n```\n\n", p.AttestationMessage)
	fmt.Fprintf(&b, "Signature\n```\n%s\n```\n\n", p.AttestationSignature)
	fmt.Fprintf(&b, "Public key (ED25519)\n```\n%s\n```\n\n", flags.AttestationPublicKeyHex.Value())
	fmt.Fprintf(&b, "This attestation can be verified at [%s/%s/verify-attestation](%s/%s/verify-attestation).\n\n",
		config.CommonConf.AppURL, d.FundSlug, config.CommonConf.AppURL, d.FundSlug)

	fmt.Fprintf(&b, "%s\n1942 Broadway St., STE 314C\nBoulder, CO 80302\nEIN: 82-5183590\n(303) 900-3237\ninfo@magicgrants.org\n", flags.EmailBranding.Value())

	markdown := b.String()
	var html bytes.Buffer
	html.WriteString(receiptStyle)
	if err := mdRenderer.Convert([]byte(markdown), &html); err != nil {
		return nil, err
	}

	return &campaign.MailerMessage{
		To:           p.To,
		Subject:      "Donation confirmation",
		PlainContent: markdown,
		HTMLContent:  html.String(),
	}, nil
}

func sanitize(s string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(s))
}

func cryptoDescription(payments []campaign.CryptoPayment) string {
	parts := make([]string, 0, len(payments))
	for _, p := range payments {
		parts = append(parts, strconv.FormatFloat(p.GrossAmount, 'f', -1, 64)+" "+p.CryptoCode)
	}
	return strings.Join(parts, ", ")
}

// formatPoints renders an integer with thousands separators, matching how the
// site itself displays balances.
func formatPoints(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	if neg {
		return "-" + out.String()
	}
	return out.String()
}
