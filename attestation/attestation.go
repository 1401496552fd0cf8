// Package attestation produces signed, independently verifiable statements
// that a donation or membership charge occurred. The message format is fixed:
// the public verification page recomputes nothing, it only checks the Ed25519
// signature over the exact message bytes.
package attestation

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/shopspring/decimal"
)

// dateFormat intentionally leaves month and day unpadded.
const dateFormat = "2006-1-2"

type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	// verifyHost is the public site prefix embedded in every message, e.g.
	// "donate.magicgrants.org".
	verifyHost string
}

// NewSigner builds a signer from a hex-encoded 32-byte Ed25519 seed.
func NewSigner(seedHex string, verifyHost string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid attestation key hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("attestation key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		priv:       priv,
		pub:        priv.Public().(ed25519.PublicKey),
		verifyHost: verifyHost,
	}, nil
}

func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// Sign returns the hex-encoded Ed25519 signature over the UTF-8 message bytes.
func (s *Signer) Sign(message string) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, []byte(message)))
}

// Verify checks a hex signature against a hex public key and the exact
// message. It is what the public verification page runs.
func Verify(publicKeyHex string, message string, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}

func paymentMethodLabel(d *campaign.Donation) string {
	if d.PaidWithCrypto() {
		return "Crypto"
	}
	return "Fiat"
}

// Donation builds and signs the attestation for a one-off donation.
func (s *Signer) Donation(donorName, donorEmail string, d *campaign.Donation) (message, signature string) {
	message = fmt.Sprintf(`MAGIC Grants Donation Attestation

Name: %s
Email: %s
Donation ID: %s
Amount: $%s
Method: %s
Fund: %s
Project: %s
Date: %s

Verify this attestation at %s/%s/verify-attestation`,
		donorName, donorEmail, d.ID,
		d.GrossFiatAmount.StringFixed(2),
		paymentMethodLabel(d),
		d.FundSlug.Title(),
		d.ProjectName,
		d.CreatedAt.Format(dateFormat),
		s.verifyHost, d.FundSlug,
	)
	return message, s.Sign(message)
}

// MembershipParams carries the subscription-wide aggregates a renewal
// attestation reports instead of single-charge values.
type MembershipParams struct {
	DonorName  string
	DonorEmail string

	// TotalAmountToDate covers every charge of the subscription; zero means
	// the donation's own gross amount (first charge, one-off membership).
	TotalAmountToDate decimal.Decimal

	// PeriodStart defaults to the donation's creation time.
	PeriodStart *time.Time
}

// Membership builds and signs the attestation for a membership charge.
func (s *Signer) Membership(p MembershipParams, d *campaign.Donation) (message, signature string) {
	total := p.TotalAmountToDate
	if total.IsZero() {
		total = d.GrossFiatAmount
	}
	periodStart := d.CreatedAt
	if p.PeriodStart != nil {
		periodStart = *p.PeriodStart
	}
	var term string
	if d.MembershipTerm != nil {
		term = capitalize(string(*d.MembershipTerm))
	}
	var periodEnd string
	if d.MembershipExpiresAt != nil {
		periodEnd = d.MembershipExpiresAt.Format(dateFormat)
	}

	message = fmt.Sprintf(`MAGIC Grants Membership Attestation

Name: %s
Email: %s
Term: %s
Total amount to date: $%s
Method: %s
Fund: %s
Period start: %s
Period end: %s

Verify this attestation at %s/%s/verify-attestation`,
		p.DonorName, p.DonorEmail,
		term,
		total.StringFixed(2),
		paymentMethodLabel(d),
		d.FundSlug.Title(),
		periodStart.Format(dateFormat),
		periodEnd,
		s.verifyHost, d.FundSlug,
	)
	return message, s.Sign(message)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
