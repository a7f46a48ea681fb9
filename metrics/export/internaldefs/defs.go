// Package internaldefs holds the shared counter definitions consumed by
// the export packages. Not part of the public API.
package internaldefs

import "github.com/calthas/authcore"

// CounterDef ties a core MetricID to its exposition name and help text.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in declaration order.
var CounterDefs = []CounterDef{
	{authcore.MetricRegisterSuccess, "authcore_register_success_total", "Accounts created."},
	{authcore.MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations refused for duplicate email."},
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Failed login attempts."},
	{authcore.MetricLoginRateLimited, "authcore_login_rate_limited_total", "Logins refused by the window limiter."},
	{authcore.MetricAccountLocked, "authcore_account_locked_total", "Durable account lockouts triggered or enforced."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful refresh rotations."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Refused refresh attempts."},
	{authcore.MetricRefreshReuseDetected, "authcore_refresh_reuse_detected_total", "Revoked refresh secrets presented."},
	{authcore.MetricLineageRevoked, "authcore_lineage_revoked_total", "Refresh lineages revoked."},
	{authcore.MetricLogout, "authcore_logout_total", "Logout operations completed."},
	{authcore.MetricVerificationIssued, "authcore_verification_issued_total", "Verification tokens issued."},
	{authcore.MetricVerificationSuccess, "authcore_verification_success_total", "Emails verified."},
	{authcore.MetricVerificationFailure, "authcore_verification_failure_total", "Verification redemptions refused."},
	{authcore.MetricVerificationRateLimited, "authcore_verification_rate_limited_total", "Verification resends refused by the limiter."},
	{authcore.MetricResetRequested, "authcore_reset_requested_total", "Password reset tokens issued."},
	{authcore.MetricResetSuccess, "authcore_reset_success_total", "Password resets completed."},
	{authcore.MetricResetFailure, "authcore_reset_failure_total", "Reset redemptions refused."},
	{authcore.MetricResetRateLimited, "authcore_reset_rate_limited_total", "Reset requests refused by the limiter."},
}
