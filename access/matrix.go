package access

import (
	"errors"
	"fmt"
)

// Level is an administrator access level.
type Level int

const (
	// LevelNone carries no administrative capability.
	LevelNone Level = 0
	// LevelSociety manages the events of one club or society.
	LevelSociety Level = 1
	// LevelSuper manages everything.
	LevelSuper Level = 2
	// LevelWebmaster manages everything and operates the platform.
	LevelWebmaster Level = 3
)

var (
	ErrInvalidLevel     = errors.New("access: invalid access level")
	ErrForbidden        = errors.New("access: forbidden")
	ErrSocietyImmutable = errors.New("access: society-scoped administrators cannot change the society of a record")
)

var matrix = [...]Mask{
	LevelNone:      0,
	LevelSociety:   maskOf(CapViewOwnSociety, CapManageOwnSociety),
	LevelSuper:     maskOf(CapViewOwnSociety, CapViewAll, CapManageOwnSociety, CapManageEvents, CapVerifyRegistrations),
	LevelWebmaster: maskOf(CapViewOwnSociety, CapViewAll, CapManageOwnSociety, CapManageEvents, CapVerifyRegistrations, CapOperate),
}

// ParseLevel validates n.
func ParseLevel(n int) (Level, error) {
	if n < int(LevelNone) || n > int(LevelWebmaster) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLevel, n)
	}
	return Level(n), nil
}

func (l Level) Valid() bool {
	return l >= LevelNone && l <= LevelWebmaster
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelSociety:
		return "society"
	case LevelSuper:
		return "super"
	case LevelWebmaster:
		return "webmaster"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Capabilities returns the mask for l. Invalid levels get nothing.
func Capabilities(l Level) Mask {
	if !l.Valid() {
		return 0
	}
	return matrix[l]
}

// Can reports whether l grants c.
func Can(l Level, c Capability) bool {
	return Capabilities(l).Has(c)
}

// Require returns ErrForbidden unless l grants c.
func Require(l Level, c Capability) error {
	if Can(l, c) {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrForbidden, l, c)
}
