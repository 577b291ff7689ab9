// internal/matching/policy.go
package matching

import (
	"strings"

	"donor-dispatch/internal/common/config"
	"donor-dispatch/internal/models"
)

// Policy maps request urgency to search radius and donor notification priority.
// Missing levels fall back to the defaults.
type Policy struct {
	RadiusKm        map[models.UrgencyLevel]float64
	DefaultRadiusKm float64
	Priority        map[models.UrgencyLevel]models.Priority
	DefaultPriority models.Priority
}

// DefaultPolicy is Critical: 50 km / Critical priority, everything else 25 km / High.
func DefaultPolicy() Policy {
	return Policy{
		RadiusKm:        map[models.UrgencyLevel]float64{models.UrgencyCritical: 50},
		DefaultRadiusKm: 25,
		Priority:        map[models.UrgencyLevel]models.Priority{models.UrgencyCritical: models.PriorityCritical},
		DefaultPriority: models.PriorityHigh,
	}
}

// PolicyFromConfig builds a policy from the matching section. Keys are matched
// case-insensitively since viper lowercases map keys.
func PolicyFromConfig(cfg config.MatchingConfig) Policy {
	p := DefaultPolicy()
	if cfg.DefaultRadiusKm > 0 {
		p.DefaultRadiusKm = cfg.DefaultRadiusKm
	}
	if len(cfg.RadiusKm) > 0 {
		p.RadiusKm = make(map[models.UrgencyLevel]float64, len(cfg.RadiusKm))
		for key, km := range cfg.RadiusKm {
			if level, ok := parseUrgency(key); ok {
				p.RadiusKm[level] = km
			}
		}
	}
	if prio, ok := parsePriority(cfg.DefaultPriority); ok {
		p.DefaultPriority = prio
	}
	if len(cfg.Priority) > 0 {
		p.Priority = make(map[models.UrgencyLevel]models.Priority, len(cfg.Priority))
		for key, value := range cfg.Priority {
			level, ok := parseUrgency(key)
			if !ok {
				continue
			}
			if prio, ok := parsePriority(value); ok {
				p.Priority[level] = prio
			}
		}
	}
	return p
}

func (p Policy) RadiusFor(u models.UrgencyLevel) float64 {
	if km, ok := p.RadiusKm[u]; ok {
		return km
	}
	return p.DefaultRadiusKm
}

func (p Policy) PriorityFor(u models.UrgencyLevel) models.Priority {
	if prio, ok := p.Priority[u]; ok {
		return prio
	}
	return p.DefaultPriority
}

func parseUrgency(s string) (models.UrgencyLevel, bool) {
	for _, u := range []models.UrgencyLevel{models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh, models.UrgencyCritical} {
		if strings.EqualFold(string(u), s) {
			return u, true
		}
	}
	return "", false
}

func parsePriority(s string) (models.Priority, bool) {
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical} {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return "", false
}
