// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Engine counters are grouped by concern: code outcomes, logins, sessions,
// tokens and mail each map to one Int64ObservableCounter with an attribute
// naming the outcome. VerifyToken latency is reported as cumulative bucket
// points keyed by "le". When the source also reports [authcore.Engine.MailStatus]
// the rotation slot and shared counter are observed as well. Callers own
// the MeterProvider.
package otel
