package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/mail"
	"github.com/eventhub/authcore/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// mailSource is implemented by sources that can report the rotation
// position. The engine does.
type mailSource interface {
	MailStatus(ctx context.Context) (mail.RotationStatus, error)
}

// member is one engine counter reported under a family attribute value.
type member struct {
	id    authcore.MetricID
	value string
}

// family groups related engine counters into one instrument whose data
// points differ by a single attribute. A family without a key has one
// member and no attributes.
type family struct {
	name    string
	desc    string
	key     attribute.Key
	members []member
}

var families = []family{
	{
		name: "authcore.otp.codes",
		desc: "Login code lifecycle events by outcome.",
		key:  "outcome",
		members: []member{
			{authcore.MetricOTPRequested, "requested"},
			{authcore.MetricOTPRateLimited, "rate_limited"},
			{authcore.MetricOTPVerified, "verified"},
			{authcore.MetricOTPInvalid, "invalid"},
			{authcore.MetricOTPExpired, "expired"},
			{authcore.MetricOTPNotFound, "not_found"},
			{authcore.MetricOTPAttemptsExceeded, "attempts_exceeded"},
		},
	},
	{
		name: "authcore.logins",
		desc: "Successful logins by principal kind.",
		key:  "principal",
		members: []member{
			{authcore.MetricUserLogin, "user"},
			{authcore.MetricAdminLogin, "admin"},
		},
	},
	{
		name: "authcore.sessions",
		desc: "End-user session events.",
		key:  "event",
		members: []member{
			{authcore.MetricSessionCreated, "created"},
			{authcore.MetricSessionExpired, "expired"},
			{authcore.MetricLogout, "logout"},
		},
	},
	{
		name: "authcore.tokens",
		desc: "Token issue and verification results.",
		key:  "result",
		members: []member{
			{authcore.MetricTokenIssued, "issued"},
			{authcore.MetricTokenVerified, "verified"},
			{authcore.MetricTokenRejected, "rejected"},
			{authcore.MetricPrincipalStale, "principal_stale"},
		},
	},
	{
		name: "authcore.mail.messages",
		desc: "Outgoing mail by result.",
		key:  "result",
		members: []member{
			{authcore.MetricMailSent, "sent"},
			{authcore.MetricMailFailed, "failed"},
			{authcore.MetricMailAccountMissing, "account_missing"},
			{authcore.MetricMailSlotSkipped, "slot_skipped"},
		},
	},
	{
		name: "authcore.access.denied",
		desc: "Capability checks that failed.",
		members: []member{
			{id: authcore.MetricPermissionDenied},
		},
	},
}

type observedFamily struct {
	family
	instrument metric.Int64ObservableCounter
	attrs      []metric.ObserveOption
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       metricsSource
	mail         mailSource
	registration metric.Registration
	families     []observedFamily

	verifyBuckets metric.Int64ObservableGauge
	verifyCount   metric.Int64ObservableGauge
	bucketAttrs   []metric.ObserveOption
	auditDropped  metric.Int64ObservableCounter

	mailSlot      metric.Int64ObservableGauge
	mailUsed      metric.Int64ObservableGauge
	mailTotalSent metric.Int64ObservableCounter
}

// NewExporter observes engine through meter, mail rotation included.
func NewExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource observes any snapshot source. When source also
// reports MailStatus the rotation gauges are registered too.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.desc))
		if err != nil {
			return nil, fmt.Errorf("otel: family %s: %w", f.name, err)
		}
		of := observedFamily{family: f, instrument: ins}
		for _, m := range f.members {
			if f.key == "" {
				of.attrs = append(of.attrs, metric.WithAttributes())
				continue
			}
			of.attrs = append(of.attrs, metric.WithAttributes(f.key.String(m.value)))
		}
		e.families = append(e.families, of)
		observables = append(observables, ins)
	}

	var err error
	e.verifyBuckets, err = meter.Int64ObservableGauge(
		"authcore.token.verify.duration.buckets",
		metric.WithDescription("Cumulative VerifyToken samples at or under each bound."),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: verify buckets: %w", err)
	}
	e.verifyCount, err = meter.Int64ObservableGauge(
		"authcore.token.verify.duration.count",
		metric.WithDescription("VerifyToken calls timed."),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: verify count: %w", err)
	}
	for _, b := range internaldefs.HistogramUpperBounds {
		e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64))))
	}
	e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(attribute.String("le", "+Inf")))
	observables = append(observables, e.verifyBuckets, e.verifyCount)

	e.auditDropped, err = meter.Int64ObservableCounter(
		"authcore.audit.dropped",
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: audit dropped: %w", err)
	}
	observables = append(observables, e.auditDropped)

	if ms, ok := source.(mailSource); ok {
		e.mail = ms
		if e.mailSlot, err = meter.Int64ObservableGauge("authcore.mail.slot",
			metric.WithDescription("Account slot currently receiving sends.")); err != nil {
			return nil, fmt.Errorf("otel: mail slot: %w", err)
		}
		if e.mailUsed, err = meter.Int64ObservableGauge("authcore.mail.slot.used",
			metric.WithDescription("Messages already sent from the current slot.")); err != nil {
			return nil, fmt.Errorf("otel: mail slot used: %w", err)
		}
		if e.mailTotalSent, err = meter.Int64ObservableCounter("authcore.mail.reserved",
			metric.WithDescription("Rotation counter value shared by every node.")); err != nil {
			return nil, fmt.Errorf("otel: mail reserved: %w", err)
		}
		observables = append(observables, e.mailSlot, e.mailUsed, e.mailTotalSent)
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(ctx context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for i, m := range f.members {
			o.ObserveInt64(f.instrument, int64(snapshot.Counters[m.id]), f.attrs[i])
		}
	}

	cumulative := internaldefs.CumulativeBuckets(
		internaldefs.NormalizeBuckets(snapshot.Histograms[authcore.MetricVerifyLatency]),
	)
	for i, v := range cumulative {
		o.ObserveInt64(e.verifyBuckets, int64(v), e.bucketAttrs[i])
	}
	o.ObserveInt64(e.verifyCount, int64(cumulative[len(cumulative)-1]))
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.mail == nil {
		return nil
	}
	status, err := e.mail.MailStatus(ctx)
	if err != nil {
		// counter store unreachable: rotation points are skipped
		return nil
	}
	if !status.Configured {
		return nil
	}
	o.ObserveInt64(e.mailSlot, int64(status.Slot))
	o.ObserveInt64(e.mailUsed, int64(status.UsedInSlot))
	o.ObserveInt64(e.mailTotalSent, status.TotalSent)
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
