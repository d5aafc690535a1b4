package domain

import "time"

// VetoType names the renewal path that was blocked
type VetoType string

const (
	VetoActionSchedulerPrevented   VetoType = "action_scheduler_prevented"
	VetoScheduledPayment           VetoType = "scheduled_payment"
	VetoManualRenewalOrderCreation VetoType = "manual_renewal_order_creation"
	VetoManualRenewalProcessing    VetoType = "manual_renewal_processing"
	VetoEarlyRenewal               VetoType = "early_renewal"
	VetoAutoRenewalToggle          VetoType = "auto_renewal_toggle"
)

// Source renewal hooks intercepted by the renewal guard
const (
	HookScheduledPayment  = "woocommerce_scheduled_subscription_payment"
	HookScheduledExpiry   = "woocommerce_scheduled_subscription_expiration"
	HookScheduledTrialEnd = "woocommerce_scheduled_subscription_trial_end"
	HookEndOfPrepaidTerm  = "woocommerce_scheduled_subscription_end_of_prepaid_term"
)

// RenewalHooks lists every source hook that can bill or end a subscription
var RenewalHooks = []string{
	HookScheduledPayment,
	HookScheduledExpiry,
	HookScheduledTrialEnd,
	HookEndOfPrepaidTerm,
}

// IsRenewalHook reports whether hook is one of RenewalHooks
func IsRenewalHook(hook string) bool {
	for _, h := range RenewalHooks {
		if h == hook {
			return true
		}
	}
	return false
}

// RenewalVeto is an audit record of a blocked renewal
type RenewalVeto struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           VetoType  `json:"type"`
	Hook           string    `json:"hook,omitempty"`
	SubscriptionID int64     `json:"subscription_id"`
}
