// Package compliance implements the optional operator geofencing and
// sanctions policy. Both lists are flat CSV environment values; enforcement
// is off unless explicitly enabled.
package compliance

import (
	"strings"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/pkg/apierror"
)

// Policy is the parsed enforcement configuration.
type Policy struct {
	enabled          bool
	blockedCountries map[string]struct{} // lowercase ISO-2
	blockedWallets   map[string]struct{} // lowercase 0x addresses
}

// NewPolicy parses the compliance settings into a Policy.
func NewPolicy(cfg config.ComplianceSettings) *Policy {
	p := &Policy{
		enabled:          cfg.Enabled(),
		blockedCountries: map[string]struct{}{},
		blockedWallets:   map[string]struct{}{},
	}
	for _, c := range config.CSV(cfg.BlockedCountries) {
		p.blockedCountries[strings.ToLower(c)] = struct{}{}
	}
	for _, w := range config.CSV(cfg.BlockedWallets) {
		p.blockedWallets[strings.ToLower(w)] = struct{}{}
	}
	return p
}

// Enabled reports whether enforcement is switched on.
func (p *Policy) Enabled() bool {
	return p.enabled
}

// Enforce checks a request's country code and wallet address against the
// policy. Empty values are not checked; geofencing is evaluated before the
// wallet so a blocked region always answers 451.
func (p *Policy) Enforce(countryCode, walletAddress string) error {
	if !p.enabled {
		return nil
	}

	if country := strings.ToLower(strings.TrimSpace(countryCode)); country != "" {
		if _, blocked := p.blockedCountries[country]; blocked {
			return apierror.ErrGeoBlocked
		}
	}

	if wallet := strings.ToLower(strings.TrimSpace(walletAddress)); wallet != "" {
		if _, blocked := p.blockedWallets[wallet]; blocked {
			return apierror.ErrSanctionedWallet
		}
	}

	return nil
}
