package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/eventhub/authcore/mail"
	"github.com/eventhub/authcore/otp"
	log "github.com/sirupsen/logrus"
)

// deliver sends one message through the next account in rotation and
// returns the slot used (-1 when none was reserved).
func (e *Engine) deliver(ctx context.Context, to, subject, body string) (int, error) {
	sel, err := e.rotator.Next(ctx)
	if err != nil {
		if errors.Is(err, mail.ErrAccountNotConfigured) {
			e.metricInc(MetricMailAccountMissing)
			e.logger.WithError(err).Error("authcore: no mail account for active slot")
			return -1, err
		}
		e.metricInc(MetricMailFailed)
		return -1, fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}

	msg := mail.Message{To: to, Subject: subject, Body: body}
	if err := e.sender.Send(ctx, sel.Account, msg); err != nil {
		e.metricInc(MetricMailFailed)
		e.logger.WithError(err).WithFields(log.Fields{"slot": sel.Slot, "used_in_slot": sel.UsedInSlot}).Warn("authcore: mail send failed")
		return sel.Slot, fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}
	e.metricInc(MetricMailSent)
	return sel.Slot, nil
}

// Notify sends an arbitrary notification through the rotation. Failures of
// non-critical notifications are logged and swallowed.
func (e *Engine) Notify(ctx context.Context, to, subject, body string, critical bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	addr, err := otp.ParseEmail(to)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	slot, err := e.deliver(ctx, addr, subject, body)
	if err == nil {
		return nil
	}
	e.emitAudit(ctx, auditEventNotificationFailure, false, auditSubject{email: addr}, "", err, func() map[string]string {
		return map[string]string{"slot": strconv.Itoa(slot), "critical": strconv.FormatBool(critical)}
	})
	if critical {
		return err
	}
	e.logger.WithError(err).WithField("slot", slot).Warn("authcore: non-critical notification dropped")
	return nil
}

// MailStatus reports the active mail slot and its remaining quota.
func (e *Engine) MailStatus(ctx context.Context) (mail.RotationStatus, error) {
	if err := e.ready(); err != nil {
		return mail.RotationStatus{}, err
	}
	return e.rotator.Status(ctx)
}

// SkipMailSlot moves rotation to the next account immediately.
func (e *Engine) SkipMailSlot(ctx context.Context) (mail.RotationStatus, error) {
	if err := e.ready(); err != nil {
		return mail.RotationStatus{}, err
	}
	status, err := e.rotator.Skip(ctx)
	if err != nil {
		return mail.RotationStatus{}, err
	}
	e.metricInc(MetricMailSlotSkipped)
	e.emitAudit(ctx, auditEventMailSlotSkipped, true, auditSubject{}, "", nil, func() map[string]string {
		return map[string]string{"slot": strconv.Itoa(status.Slot)}
	})
	return status, nil
}

// ReportMailQuotaExceeded tells the rotation that the provider refused slot
// for quota reasons. Rotation skips ahead only if slot is still active.
func (e *Engine) ReportMailQuotaExceeded(ctx context.Context, slot int) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	skipped, err := e.rotator.ReportQuotaExceeded(ctx, slot)
	if err != nil {
		return false, err
	}
	if skipped {
		e.metricInc(MetricMailSlotSkipped)
	}
	e.emitAudit(ctx, auditEventMailQuotaReported, true, auditSubject{}, "", nil, func() map[string]string {
		return map[string]string{"slot": strconv.Itoa(slot), "skipped": strconv.FormatBool(skipped)}
	})
	return skipped, nil
}
