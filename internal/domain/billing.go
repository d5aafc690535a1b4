package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PlanAdditionalDescription is shown beneath every migrated plan
const PlanAdditionalDescription = "Enjoy automatic renewals on your schedule. No commitment, modify or cancel anytime."

// PeriodToInterval converts a source billing period to the target encoding, defaulting to month
func PeriodToInterval(period string) BillingInterval {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "day":
		return BillingIntervalDay
	case "week":
		return BillingIntervalWeek
	case "month":
		return BillingIntervalMonth
	case "year":
		return BillingIntervalYear
	default:
		return BillingIntervalMonth
	}
}

// IsKnownPeriod reports whether period is one of day, week, month, year
func IsKnownPeriod(period string) bool {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "day", "week", "month", "year":
		return true
	}
	return false
}

// TrialToDays converts a trial length and period into days. Unknown periods yield 0.
func TrialToDays(length int, period string) int {
	if length <= 0 {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "day":
		return length
	case "week":
		return length * 7
	case "month":
		return length * 30
	case "year":
		return length * 365
	default:
		return 0
	}
}

// MapSourceStatus converts a source subscription status into the target status code
func MapSourceStatus(status string) TargetSubscriptionStatus {
	switch strings.TrimPrefix(status, "wc-") {
	case SourceStatusPending:
		return TargetStatusPending
	case SourceStatusActive:
		return TargetStatusActive
	case SourceStatusOnHold:
		return TargetStatusOnHold
	case SourceStatusCancelled:
		return TargetStatusCancelled
	case SourceStatusSwitched, SourceStatusExpired:
		return TargetStatusCompleted
	case SourceStatusPendingCancel:
		return TargetStatusPendingCancel
	case SourceStatusTrial:
		return TargetStatusTrialing
	default:
		return TargetStatusPending
	}
}

// PlanTitle builds the human title of a plan, e.g. "Monthly" or "Every 3 Weeks"
func PlanTitle(period string, interval int) string {
	period = strings.ToLower(strings.TrimSpace(period))
	if interval <= 1 {
		switch period {
		case "day":
			return "Daily"
		case "week":
			return "Weekly"
		case "month":
			return "Monthly"
		case "year":
			return "Yearly"
		}
		return cases.Title(language.English).String(period)
	}

	switch period {
	case "day":
		return fmt.Sprintf("Every %d Days", interval)
	case "week":
		return fmt.Sprintf("Every %d Weeks", interval)
	case "month":
		return fmt.Sprintf("Every %d Months", interval)
	case "year":
		return fmt.Sprintf("Every %d Years", interval)
	}
	return fmt.Sprintf("Every %d %s", interval, cases.Title(language.English).String(period))
}

// DisplaySummary renders the billing summary template for a plan
func DisplaySummary(signupFee decimal.Decimal, trialDays int) string {
	hasFee := signupFee.IsPositive()
	switch {
	case trialDays > 0 && hasFee:
		return fmt.Sprintf("Billed {{subscription_price}} after %d days free trial and a one-time {{signup_fee}} signup fee.", trialDays)
	case trialDays > 0:
		return fmt.Sprintf("Billed {{subscription_price}} after %d days free trial.", trialDays)
	case hasFee:
		return "Billed {{subscription_price}} with a one-time {{signup_fee}} signup fee."
	default:
		return "Billed {{subscription_price}}."
	}
}

// BillingTerms are the recurring terms shared by products schemes and subscriptions
type BillingTerms struct {
	Period      string
	TrialPeriod string
	Price       decimal.Decimal
	SignupFee   decimal.Decimal
	Discount    decimal.Decimal
	Interval    int
	Length      int
	TrialLength int
}

// BuildPlan turns billing terms into a target plan definition
func BuildPlan(terms BillingTerms, planType PlanType) *PlanDefinition {
	frequency := terms.Interval
	if frequency <= 0 {
		frequency = 1
	}
	trialDays := TrialToDays(terms.TrialLength, terms.TrialPeriod)

	ends := "never"
	if terms.Length > 0 {
		ends = "after_payments"
	}

	offer := Offer{PriceType: "default", DiscountType: "percentage", DiscountValue: "0"}
	if terms.Discount.IsPositive() {
		offer.DiscountValue = terms.Discount.String()
	}

	return &PlanDefinition{
		Title:            PlanTitle(terms.Period, frequency),
		Type:             planType,
		BillingFrequency: frequency,
		BillingInterval:  PeriodToInterval(terms.Period),
		BillingLength:    terms.Length,
		SignupFee:        SignupFee{Type: "fixed", Amount: terms.SignupFee},
		Offer:            offer,
		TrialDays:        trialDays,
		Status:           1,
		Data: PlanData{
			SubscriptionEnds:             ends,
			SubscriptionEndsPaymentCount: terms.Length,
			AdditionalDescription:        PlanAdditionalDescription,
			DisplaySummary:               DisplaySummary(terms.SignupFee, trialDays),
		},
	}
}

// Matches reports whether an existing plan can be reused for the given candidate.
// Frequency, interval, trial, signup fee and discount must all be equal.
func (p *PlanDefinition) Matches(candidate *PlanDefinition) bool {
	return p.BillingFrequency == candidate.BillingFrequency &&
		p.BillingInterval == candidate.BillingInterval &&
		p.TrialDays == candidate.TrialDays &&
		p.SignupFee.Amount.Equal(candidate.SignupFee.Amount) &&
		offerValue(p.Offer).Equal(offerValue(candidate.Offer))
}

func offerValue(o Offer) decimal.Decimal {
	v, err := decimal.NewFromString(o.DiscountValue)
	if err != nil {
		return decimal.Zero
	}
	return v
}
