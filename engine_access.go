package authcore

import (
	"context"
	"fmt"

	"github.com/eventhub/authcore/access"
)

// Authorize reports whether principal holds capability. End users hold no
// administrative capability.
func (e *Engine) Authorize(ctx context.Context, principal Principal, capability access.Capability) error {
	admin, ok := principal.(Administrator)
	if !ok {
		e.deny(ctx, principal, capability.String())
		return fmt.Errorf("%w: %s requires an administrator", ErrPermissionDenied, capability)
	}
	if err := access.Require(admin.AccessLevel, capability); err != nil {
		e.deny(ctx, principal, capability.String())
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

// AdminScope returns the scope principal acts under, or ErrPermissionDenied
// for end users.
func AdminScope(principal Principal) (access.Scope, error) {
	admin, ok := principal.(Administrator)
	if !ok {
		return access.Scope{}, ErrPermissionDenied
	}
	return admin.Scope(), nil
}

func (e *Engine) deny(ctx context.Context, principal Principal, what string) {
	e.metricInc(MetricPermissionDenied)
	e.emitAudit(ctx, auditEventPermissionDenied, false, subjectOf(principal), "", ErrPermissionDenied, func() map[string]string {
		return map[string]string{"capability": what}
	})
}
