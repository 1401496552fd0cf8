package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/attestation"
	"github.com/MAGICGrants/campaign-site/email"
	"github.com/MAGICGrants/campaign-site/service/flags"
)

const sideEffectTimeout = 15 * time.Second

// Reconcile turns a normalized payment event into a donation ledger entry and
// runs its side effects. It is idempotent with respect to redeliveries: a
// duplicate origin reference is acknowledged, never double-booked.
//
// Side effects have two severities. The points grant must not be lost, so a
// failed grant rolls the ledger entry back and surfaces the error for the
// processor to redeliver. Forum sync and the receipt email are best-effort:
// they log and move on, because redelivering a settled payment over a broken
// mail server would double nothing but still block the acknowledgment.
func (s *Service) Reconcile(ctx context.Context, ev *campaign.PaymentEvent) error {
	if ev.StaticAddress {
		return s.reconcileStatic(ctx, ev)
	}

	d := donationFromEvent(ev)

	if err := s.store.CreateDonation(ctx, d); err != nil {
		if errors.Is(err, campaign.ErrDonationExists) {
			slog.WarnContext(ctx, "Skipping already processed settlement",
				slog.String("processor", string(ev.Processor)), slog.String("origin", ev.OriginID))
			webhookEvents.WithLabelValues(string(ev.Processor), "duplicate").Inc()
			return nil
		}
		webhookEvents.WithLabelValues(string(ev.Processor), "failed").Inc()
		return err
	}

	if d.PointsAdded > 0 && d.UserID != nil {
		if err := s.points.Grant(ctx, d.PointsAdded, d); err != nil {
			slog.ErrorContext(ctx, "Could not grant points, rolling back ledger entry",
				slog.String("donation", d.ID), slog.Any("err", err))
			if delErr := s.store.DeleteDonation(ctx, d.ID); delErr != nil {
				slog.ErrorContext(ctx, "Could not roll back ledger entry",
					slog.String("donation", d.ID), slog.Any("err", delErr))
			}
			webhookEvents.WithLabelValues(string(ev.Processor), "failed").Inc()
			return err
		}
	}

	s.syncForumMembership(ctx, ev, d)
	s.sendReceipt(ctx, ev, d)

	webhookEvents.WithLabelValues(string(ev.Processor), "processed").Inc()
	slog.InfoContext(ctx, "Settlement reconciled",
		slog.String("processor", string(ev.Processor)), slog.String("origin", ev.OriginID),
		slog.String("donation", d.ID))
	return nil
}

// reconcileStatic books one on-chain payment to a static funding address. No
// user, no points, no membership: only the anonymous ledger entry. The same
// invoice may legitimately appear many times, once per transaction, so
// duplicate detection works on the transaction id.
func (s *Service) reconcileStatic(ctx context.Context, ev *campaign.PaymentEvent) error {
	seen, err := s.store.InvoiceHasTransaction(ctx, ev.OriginID, ev.TxID)
	if err != nil {
		return err
	}
	if seen {
		slog.WarnContext(ctx, "Skipping already processed transaction",
			slog.String("invoice", ev.OriginID), slog.String("txid", ev.TxID))
		webhookEvents.WithLabelValues(string(ev.Processor), "duplicate").Inc()
		return nil
	}

	md := ev.Metadata
	d := &campaign.Donation{
		BTCPayInvoiceID: &ev.OriginID,

		FundSlug:    md.FundSlug,
		ProjectSlug: md.ProjectSlug,
		ProjectName: md.ProjectName,

		CryptoPayments:  ev.Methods,
		GrossFiatAmount: ev.GrossFiat,
		NetFiatAmount:   ev.NetFiat,

		ShowDonorNameOnLeaderboard: md.ShowDonorNameOnLeaderboard,
		DonorName:                  optional(md.DonorName),
	}
	if err := s.store.CreateDonation(ctx, d); err != nil {
		if errors.Is(err, campaign.ErrDonationExists) {
			webhookEvents.WithLabelValues(string(ev.Processor), "duplicate").Inc()
			return nil
		}
		webhookEvents.WithLabelValues(string(ev.Processor), "failed").Inc()
		return err
	}

	webhookEvents.WithLabelValues(string(ev.Processor), "processed").Inc()
	slog.InfoContext(ctx, "Static address payment reconciled",
		slog.String("invoice", ev.OriginID), slog.String("txid", ev.TxID))
	return nil
}

func donationFromEvent(ev *campaign.PaymentEvent) *campaign.Donation {
	md := ev.Metadata

	d := &campaign.Donation{
		UserID: optional(md.UserID),

		FundSlug:    md.FundSlug,
		ProjectSlug: md.ProjectSlug,
		ProjectName: md.ProjectName,

		CryptoPayments:  ev.Methods,
		GrossFiatAmount: campaign.RoundFiat(ev.GrossFiat),
		NetFiatAmount:   campaign.RoundFiat(ev.NetFiat),

		ShowDonorNameOnLeaderboard: md.ShowDonorNameOnLeaderboard,
		DonorName:                  optional(md.DonorName),
		DonorNameIsProfane:         md.DonorNameIsProfane,
	}

	switch ev.Processor {
	case campaign.ProcessorBTCPay:
		d.BTCPayInvoiceID = &ev.OriginID
	case campaign.ProcessorCoinbase:
		d.CoinbaseChargeID = &ev.OriginID
	case campaign.ProcessorStripe:
		if ev.Kind == campaign.EventSubscriptionInvoicePaid {
			d.StripeInvoiceID = &ev.OriginID
			d.StripeSubscriptionID = &ev.SubscriptionID
		} else {
			d.StripePaymentIntentID = &ev.OriginID
		}
	}

	if md.GivePointsBack {
		d.PointsAdded = campaign.PointsForAmount(ev.GrossFiat, flags.PointsPerUSD.Value())
	}

	if md.IsMembership && md.MembershipTerm != "" {
		term := md.MembershipTerm
		d.MembershipTerm = &term
		var expiry time.Time
		if ev.PeriodEnd != nil {
			expiry = *ev.PeriodEnd
		} else {
			expiry = campaign.ExpiryFromTerm(term, time.Now())
		}
		d.MembershipExpiresAt = &expiry
	}

	return d
}

// syncForumMembership adds paying Privacy Guides members to the forum members
// group. Best-effort: the forum is an external system with its own uptime.
func (s *Service) syncForumMembership(ctx context.Context, ev *campaign.PaymentEvent, d *campaign.Donation) {
	md := ev.Metadata
	if !md.IsMembership || md.FundSlug != campaign.FundPrivacyGuides || d.UserID == nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := s.forum.AddUserToMembersGroup(fctx, *d.UserID); err != nil {
		slog.WarnContext(ctx, "Could not add user to forum members group, continuing",
			slog.String("user", *d.UserID), slog.String("origin", ev.OriginID), slog.Any("err", err))
	}
}

// sendReceipt signs an attestation and mails the donation receipt.
// Best-effort: a broken mail server must not make the processor redeliver a
// payment that is already on the ledger.
func (s *Service) sendReceipt(ctx context.Context, ev *campaign.PaymentEvent, d *campaign.Donation) {
	md := ev.Metadata
	if md.DonorEmail == "" || md.DonorName == "" {
		return
	}

	var message, signature string
	if md.IsMembership && md.MembershipTerm != "" {
		params := attestation.MembershipParams{
			DonorName:         md.DonorName,
			DonorEmail:        md.DonorEmail,
			TotalAmountToDate: d.GrossFiatAmount,
		}
		if ev.Kind == campaign.EventSubscriptionInvoicePaid {
			total, periodStart, err := s.store.SubscriptionAggregate(ctx, ev.SubscriptionID)
			if err != nil {
				slog.WarnContext(ctx, "Could not aggregate subscription, attesting this charge only",
					slog.String("subscription", ev.SubscriptionID), slog.Any("err", err))
			} else {
				params.TotalAmountToDate = total
				params.PeriodStart = &periodStart
			}
		}
		message, signature = s.signer.Membership(params, d)
	} else if !md.IsMembership {
		message, signature = s.signer.Donation(md.DonorName, md.DonorEmail, d)
	}

	msg, err := email.DonationConfirmation(&email.DonationConfirmationParams{
		To:                   md.DonorEmail,
		DonorName:            md.DonorName,
		Donation:             d,
		AttestationMessage:   message,
		AttestationSignature: signature,
	})
	if err != nil {
		slog.WarnContext(ctx, "Could not build donation receipt, continuing",
			slog.String("donation", d.ID), slog.Any("err", err))
		return
	}

	mctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := s.mailer.SendEmail(mctx, msg); err != nil {
		slog.WarnContext(ctx, "Could not send donation receipt, continuing",
			slog.String("donation", d.ID), slog.Any("err", err))
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
