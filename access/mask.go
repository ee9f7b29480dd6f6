package access

// Capability is a single permission bit.
type Capability uint8

const (
	CapViewOwnSociety Capability = iota
	CapViewAll
	CapManageOwnSociety
	CapManageEvents
	CapVerifyRegistrations
	CapOperate
	capCount
)

var capabilityNames = [capCount]string{
	CapViewOwnSociety:      "view_own_society",
	CapViewAll:             "view_all",
	CapManageOwnSociety:    "manage_own_society",
	CapManageEvents:        "manage_events",
	CapVerifyRegistrations: "verify_registrations",
	CapOperate:             "operate",
}

func (c Capability) String() string {
	if c >= capCount {
		return "unknown"
	}
	return capabilityNames[c]
}

// Mask is a set of capabilities.
type Mask uint64

func (m Mask) Has(c Capability) bool {
	if c >= capCount {
		return false
	}
	return m&(1<<c) != 0
}

func (m *Mask) Set(c Capability) {
	if c >= capCount {
		return
	}
	*m |= 1 << c
}

func (m *Mask) Clear(c Capability) {
	if c >= capCount {
		return
	}
	*m &^= 1 << c
}

// Names lists the capabilities in the mask in bit order.
func (m Mask) Names() []string {
	out := make([]string, 0, capCount)
	for c := Capability(0); c < capCount; c++ {
		if m.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

func maskOf(caps ...Capability) Mask {
	var m Mask
	for _, c := range caps {
		m.Set(c)
	}
	return m
}
