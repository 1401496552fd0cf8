package attestation

import (
	"strings"
	"testing"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/shopspring/decimal"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testSeed, "https://donate.magicgrants.org")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSignerRejectsBadSeeds(t *testing.T) {
	if _, err := NewSigner("zz", "host"); err == nil {
		t.Error("Expected error for non-hex seed")
	}
	if _, err := NewSigner("abcd", "host"); err == nil {
		t.Error("Expected error for short seed")
	}
}

func TestDonationAttestationRoundTrip(t *testing.T) {
	s := testSigner(t)
	d := &campaign.Donation{
		ID:              "b51a3e25-9e63-4f29-b6d8-3b91d52a2a61",
		FundSlug:        campaign.FundMonero,
		ProjectName:     "Research Fellowship",
		GrossFiatAmount: decimal.RequireFromString("100"),
		CreatedAt:       time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC),
	}

	message, signature := s.Donation("Jane Doe", "jane@example.com", d)

	for _, want := range []string{
		"MAGIC Grants Donation Attestation",
		"Name: Jane Doe",
		"Email: jane@example.com",
		"Amount: $100.00",
		"Method: Fiat",
		"Fund: Monero Fund",
		"Project: Research Fellowship",
		"Date: 2025-3-7",
		"Verify this attestation at https://donate.magicgrants.org/monero/verify-attestation",
	} {
		if !strings.Contains(message, want) {
			t.Errorf("Message missing %q:\n%s", want, message)
		}
	}

	if !Verify(s.PublicKeyHex(), message, signature) {
		t.Fatal("Signature did not verify against its own message")
	}
}

func TestTamperedMessageFailsVerification(t *testing.T) {
	s := testSigner(t)
	d := &campaign.Donation{
		ID:              "id",
		FundSlug:        campaign.FundGeneral,
		GrossFiatAmount: decimal.RequireFromString("50"),
		CreatedAt:       time.Now(),
	}
	message, signature := s.Donation("A", "a@b.c", d)

	tampered := strings.Replace(message, "$50.00", "$51.00", 1)
	if Verify(s.PublicKeyHex(), tampered, signature) {
		t.Error("Tampered message verified")
	}

	badSig := "00" + signature[2:]
	if badSig != signature && Verify(s.PublicKeyHex(), message, badSig) {
		t.Error("Tampered signature verified")
	}

	if Verify("abcd", message, signature) {
		t.Error("Bogus public key verified")
	}
}

func TestMembershipAttestation(t *testing.T) {
	s := testSigner(t)

	term := campaign.TermAnnually
	expiry := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	d := &campaign.Donation{
		ID:                  "id",
		FundSlug:            campaign.FundPrivacyGuides,
		GrossFiatAmount:     decimal.RequireFromString("20"),
		MembershipTerm:      &term,
		MembershipExpiresAt: &expiry,
		CreatedAt:           start,
		CryptoPayments: []campaign.CryptoPayment{
			{CryptoCode: "XMR", GrossAmount: 0.1, NetAmount: 0.1, Rate: 200},
		},
	}

	message, signature := s.Membership(MembershipParams{
		DonorName:  "Jane Doe",
		DonorEmail: "jane@example.com",
	}, d)

	for _, want := range []string{
		"MAGIC Grants Membership Attestation",
		"Term: Annually",
		"Total amount to date: $20.00",
		"Method: Crypto",
		"Fund: Privacy Guides Fund",
		"Period start: 2025-1-2",
		"Period end: 2026-1-2",
	} {
		if !strings.Contains(message, want) {
			t.Errorf("Message missing %q:\n%s", want, message)
		}
	}
	if !Verify(s.PublicKeyHex(), message, signature) {
		t.Fatal("Signature did not verify")
	}
}

func TestMembershipAttestationAggregates(t *testing.T) {
	s := testSigner(t)

	term := campaign.TermMonthly
	expiry := time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC)
	subStart := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	d := &campaign.Donation{
		ID:                  "id",
		FundSlug:            campaign.FundFiro,
		GrossFiatAmount:     decimal.RequireFromString("10"),
		MembershipTerm:      &term,
		MembershipExpiresAt: &expiry,
		CreatedAt:           time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
	}

	message, _ := s.Membership(MembershipParams{
		DonorName:         "Jane Doe",
		DonorEmail:        "jane@example.com",
		TotalAmountToDate: decimal.RequireFromString("60"),
		PeriodStart:       &subStart,
	}, d)

	if !strings.Contains(message, "Total amount to date: $60.00") {
		t.Errorf("Expected aggregated total, got:\n%s", message)
	}
	if !strings.Contains(message, "Period start: 2025-1-10") {
		t.Errorf("Expected subscription period start, got:\n%s", message)
	}
}
