package flashoffers

import (
	"fmt"

	"github.com/clinvia/revenue-engine/internal/gaps"
)

// OfferMessage renders the outbound text for one flash offer. The expiry is
// stated explicitly so the patient knows the window is real.
func OfferMessage(patientName, clinicName string, g gaps.Gap) string {
	name := patientName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi %s! A slot just opened at %s on %s from %s to %s. Book it now for %s instead of %s (%d%% off). This offer expires %s — reply or pay online to claim it!",
		name,
		clinicName,
		g.StartAt.Format("Mon Jan 2"),
		g.StartAt.Format("15:04"),
		g.EndAt.Format("15:04"),
		formatPrice(g.DiscountPriceCents),
		formatPrice(g.NormalPriceCents),
		g.DiscountPct,
		g.ExpiresAt.Format("Jan 2 at 15:04"),
	)
}

// OfferSubject is the subject line used on the email channel.
func OfferSubject(clinicName string, g gaps.Gap) string {
	return fmt.Sprintf("%s: last-minute opening %s, %d%% off", clinicName, g.StartAt.Format("Mon Jan 2"), g.DiscountPct)
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
