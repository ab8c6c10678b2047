package relationship

import (
	"strings"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// TierMatcher maps senders to relationship tiers from configured lists.
// An entry containing "@" matches one address; anything else matches a
// domain and its subdomains.
type TierMatcher struct {
	tiers  []tierEntries
	logger *zap.Logger
}

type tierEntries struct {
	tier      core.RelationshipTier
	addresses map[string]struct{}
	domains   []string
}

// NewTierMatcher creates a new tier matcher. Earlier tiers win when a sender matches several.
func NewTierMatcher(boss, client, colleague []string, logger *zap.Logger) *TierMatcher {
	m := &TierMatcher{logger: logger}
	for _, t := range []struct {
		tier    core.RelationshipTier
		entries []string
	}{
		{core.RelationshipBoss, boss},
		{core.RelationshipClient, client},
		{core.RelationshipColleague, colleague},
	} {
		te := tierEntries{tier: t.tier, addresses: make(map[string]struct{})}
		for _, e := range t.entries {
			e = strings.ToLower(strings.TrimSpace(e))
			switch {
			case e == "":
			case strings.Contains(e, "@"):
				te.addresses[e] = struct{}{}
			default:
				te.domains = append(te.domains, strings.TrimPrefix(e, "@"))
			}
		}
		if len(te.addresses) > 0 || len(te.domains) > 0 {
			logger.Info("Initialized relationship tier",
				zap.String("tier", string(t.tier)),
				zap.Int("addresses", len(te.addresses)),
				zap.Strings("domains", te.domains))
		}
		m.tiers = append(m.tiers, te)
	}
	return m
}

// Match returns the configured tier of a sender
func (m *TierMatcher) Match(from string) (core.RelationshipTier, bool) {
	address := core.NormalizeAddress(from)
	domain := core.DomainOf(from)
	if domain == "" {
		return core.RelationshipUnknown, false
	}

	for _, te := range m.tiers {
		if _, ok := te.addresses[address]; ok {
			return te.tier, true
		}
		for _, d := range te.domains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				m.logger.Debug("Sender matched tier domain",
					zap.String("tier", string(te.tier)),
					zap.String("domain", domain))
				return te.tier, true
			}
		}
	}
	return core.RelationshipUnknown, false
}
