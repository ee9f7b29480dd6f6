package access

// Owned is anything that belongs to a club or society.
type Owned interface {
	OwnerSociety() string
}

// Scope is the acting administrator.
type Scope struct {
	Level   Level
	Society string
}

// CanView reports whether the scope may read item.
func (s Scope) CanView(item Owned) bool {
	caps := Capabilities(s.Level)
	if caps.Has(CapViewAll) {
		return true
	}
	return caps.Has(CapViewOwnSociety) && s.owns(item)
}

// CanModify reports whether the scope may add, edit or delete item.
func (s Scope) CanModify(item Owned) bool {
	caps := Capabilities(s.Level)
	if caps.Has(CapManageEvents) {
		return true
	}
	return caps.Has(CapManageOwnSociety) && s.owns(item)
}

// CanVerifyRegistrations reports whether the scope may mark registrations
// verified.
func (s Scope) CanVerifyRegistrations() bool {
	return Can(s.Level, CapVerifyRegistrations)
}

func (s Scope) owns(item Owned) bool {
	return item != nil && s.Society != "" && item.OwnerSociety() == s.Society
}

// Filter returns the items the scope may view, in input order.
func Filter[T Owned](s Scope, items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if s.CanView(item) {
			out = append(out, item)
		}
	}
	return out
}

// ValidateCreate checks that the scope may create an item owned by society.
func (s Scope) ValidateCreate(society string) error {
	if s.CanModify(Society(society)) {
		return nil
	}
	return ErrForbidden
}

// ValidateUpdate checks an edit of current that would set its society to
// proposedSociety. Society-scoped administrators may edit their own records
// but never move them to another society.
func (s Scope) ValidateUpdate(current Owned, proposedSociety string) error {
	if !s.CanModify(current) {
		return ErrForbidden
	}
	if Can(s.Level, CapManageEvents) {
		return nil
	}
	if proposedSociety != current.OwnerSociety() {
		return ErrSocietyImmutable
	}
	return nil
}

// ValidateDelete checks that the scope may delete item.
func (s Scope) ValidateDelete(item Owned) error {
	if s.CanModify(item) {
		return nil
	}
	return ErrForbidden
}

// Society is a bare society name usable wherever an Owned is expected.
type Society string

func (s Society) OwnerSociety() string { return string(s) }
