package internaldefs

import "github.com/eventhub/authcore"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricOTPRequested, Name: "authcore_otp_requested_total", Help: "Login codes issued."},
	{ID: authcore.MetricOTPRateLimited, Name: "authcore_otp_rate_limited_total", Help: "Code requests denied by the per-client limit."},
	{ID: authcore.MetricOTPVerified, Name: "authcore_otp_verified_total", Help: "Codes verified successfully."},
	{ID: authcore.MetricOTPInvalid, Name: "authcore_otp_invalid_total", Help: "Wrong codes submitted."},
	{ID: authcore.MetricOTPExpired, Name: "authcore_otp_expired_total", Help: "Codes submitted after expiry."},
	{ID: authcore.MetricOTPNotFound, Name: "authcore_otp_not_found_total", Help: "Codes submitted with no outstanding record."},
	{ID: authcore.MetricOTPAttemptsExceeded, Name: "authcore_otp_attempts_exceeded_total", Help: "Codes rejected after the attempt cap."},
	{ID: authcore.MetricUserLogin, Name: "authcore_user_login_total", Help: "Successful end-user logins."},
	{ID: authcore.MetricAdminLogin, Name: "authcore_admin_login_total", Help: "Successful administrator logins."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "End-user sessions created."},
	{ID: authcore.MetricSessionExpired, Name: "authcore_session_expired_total", Help: "Sessions found past their lifetime."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Session logouts."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Tokens issued."},
	{ID: authcore.MetricTokenVerified, Name: "authcore_token_verified_total", Help: "Tokens verified."},
	{ID: authcore.MetricTokenRejected, Name: "authcore_token_rejected_total", Help: "Tokens rejected."},
	{ID: authcore.MetricPrincipalStale, Name: "authcore_principal_stale_total", Help: "Valid tokens whose principal no longer exists."},
	{ID: authcore.MetricMailSent, Name: "authcore_mail_sent_total", Help: "Messages handed to the mail sender."},
	{ID: authcore.MetricMailFailed, Name: "authcore_mail_failed_total", Help: "Messages the sender failed to deliver."},
	{ID: authcore.MetricMailAccountMissing, Name: "authcore_mail_account_missing_total", Help: "Sends refused because the slot had no account."},
	{ID: authcore.MetricMailSlotSkipped, Name: "authcore_mail_slot_skipped_total", Help: "Manual or quota-triggered slot skips."},
	{ID: authcore.MetricPermissionDenied, Name: "authcore_permission_denied_total", Help: "Capability checks that failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Token verification latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

const AuditDroppedName = "authcore_audit_dropped_total"
const AuditDroppedHelp = "Audit events dropped under backpressure."

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
