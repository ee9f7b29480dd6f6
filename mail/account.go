package mail

import (
	"fmt"
	"os"
	"strings"
)

// Account is one set of outbound credentials.
type Account struct {
	Slot     int    `yaml:"slot"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
}

// Configured reports whether the account has usable credentials.
func (a Account) Configured() bool {
	return strings.TrimSpace(a.Username) != "" && a.Password != ""
}

// Sender returns the From address, falling back to the username.
func (a Account) Sender() string {
	if a.From != "" {
		return a.From
	}
	return a.Username
}

// Pool maps slots to accounts.
type Pool interface {
	Account(slot int) (Account, bool)
	Size() int
}

// StaticPool is a fixed slice of accounts indexed by slot.
type StaticPool struct {
	accounts []Account
}

// NewStaticPool places each account at its Slot. Accounts with a slot
// outside [0,size) are ignored.
func NewStaticPool(size int, accounts []Account) *StaticPool {
	p := &StaticPool{accounts: make([]Account, size)}
	for _, a := range accounts {
		if a.Slot < 0 || a.Slot >= size {
			continue
		}
		p.accounts[a.Slot] = a
	}
	return p
}

func (p *StaticPool) Account(slot int) (Account, bool) {
	if slot < 0 || slot >= len(p.accounts) {
		return Account{}, false
	}
	a := p.accounts[slot]
	return a, a.Configured()
}

func (p *StaticPool) Size() int {
	return len(p.accounts)
}

// Configured counts slots with usable credentials.
func (p *StaticPool) Configured() int {
	n := 0
	for _, a := range p.accounts {
		if a.Configured() {
			n++
		}
	}
	return n
}

// EnvPrefix is the default prefix for PoolFromEnv.
const EnvPrefix = "AUTHCORE_MAIL"

// PoolFromEnv reads <prefix>_USER_<n> and <prefix>_PASS_<n> for n = 1..size
// into slots 0..size-1. base supplies host, port and other shared settings.
// A nil lookup uses os.LookupEnv.
func PoolFromEnv(prefix string, size int, base Account, lookup func(string) (string, bool)) *StaticPool {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if prefix == "" {
		prefix = EnvPrefix
	}

	accounts := make([]Account, 0, size)
	for i := 0; i < size; i++ {
		user, _ := lookup(fmt.Sprintf("%s_USER_%d", prefix, i+1))
		pass, _ := lookup(fmt.Sprintf("%s_PASS_%d", prefix, i+1))
		a := base
		a.Slot = i
		a.Username = strings.TrimSpace(user)
		a.Password = pass
		accounts = append(accounts, a)
	}
	return NewStaticPool(size, accounts)
}

// Merge overlays the configured accounts of other onto p.
func (p *StaticPool) Merge(other *StaticPool) {
	if other == nil {
		return
	}
	for i, a := range other.accounts {
		if i < len(p.accounts) && a.Configured() {
			p.accounts[i] = a
		}
	}
}
