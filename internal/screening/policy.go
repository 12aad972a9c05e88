package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/nyaruka/phonenumbers"
)

// Policy applies the advanced blocking modes: contacts-only, night guard and
// international lock. Contacts are exempt from all of them.
type Policy struct {
	contacts ports.ContactDirectory
}

func NewPolicy(contacts ports.ContactDirectory) *Policy {
	return &Policy{contacts: contacts}
}

// Evaluate returns nil when no advanced rule applies to the caller.
func (p *Policy) Evaluate(ctx context.Context, prefs domain.Preferences, hash domain.NumberHash, e164 string, now time.Time) (domain.CallDecision, error) {
	if !prefs.ContactsOnly && !prefs.NightGuard.Enabled && !prefs.InternationalLock.Enabled {
		return nil, nil
	}

	if p.contacts != nil {
		known, err := p.contacts.IsContact(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to check contacts: %w", err)
		}
		if known {
			return nil, nil
		}
	}

	if prefs.ContactsOnly {
		return domain.Silence{Source: domain.SourceAdvancedBlocking}, nil
	}

	if prefs.NightGuard.Covers(now.Hour()) {
		return domain.Silence{Source: domain.SourceAdvancedBlocking}, nil
	}

	if prefs.InternationalLock.Enabled {
		home := prefs.InternationalLock.HomeCountryCode
		if home == 0 {
			home = 91
		}
		cc, err := countryCode(e164)
		if err != nil {
			return nil, err
		}
		if cc != home {
			return domain.Reject{Source: domain.SourceAdvancedBlocking}, nil
		}
	}

	return nil, nil
}

func countryCode(e164 string) (int, error) {
	num, err := phonenumbers.Parse(e164, "IN")
	if err != nil {
		return 0, fmt.Errorf("failed to parse caller number: %w", err)
	}
	return int(num.GetCountryCode()), nil
}
