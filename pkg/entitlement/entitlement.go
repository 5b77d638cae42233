package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Level is the three-tier plan state gating feature access.
type Level string

const (
	LevelFree    Level = "free"
	LevelBasic   Level = "basic"
	LevelPremium Level = "premium"
)

// ParseLevel maps an arbitrary string to a known level.
// Unknown or unmapped values resolve to LevelFree, never to an unset state.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelBasic:
		return LevelBasic
	case LevelPremium:
		return LevelPremium
	default:
		return LevelFree
	}
}

// Rank orders levels so the highest-ranked matching product wins
// when a subscription carries multiple line items.
func (l Level) Rank() int {
	switch l {
	case LevelPremium:
		return 2
	case LevelBasic:
		return 1
	default:
		return 0
	}
}

// IsPaid reports whether the level confers paid entitlement.
func (l Level) IsPaid() bool {
	return l == LevelBasic || l == LevelPremium
}

// Higher returns the higher-ranked of two levels.
func Higher(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Feature represents a capability gated by entitlement level.
type Feature string

const (
	FeatureAPI             Feature = "api"
	FeatureExport          Feature = "export"
	FeatureAnalytics       Feature = "analytics"
	FeatureCustomDomain    Feature = "custom_domain"
	FeaturePrioritySupport Feature = "priority_support"
)

// featureTable maps each level to its enabled features. Levels inherit
// nothing implicitly; every level lists its full feature set.
var featureTable = map[Level][]Feature{
	LevelFree: {},
	LevelBasic: {
		FeatureAPI,
		FeatureExport,
	},
	LevelPremium: {
		FeatureAPI,
		FeatureExport,
		FeatureAnalytics,
		FeatureCustomDomain,
		FeaturePrioritySupport,
	},
}

// HasFeature reports whether a feature is enabled for the given level.
// It is a pure function of the level and the static feature table.
func HasFeature(level Level, feature Feature) bool {
	for _, f := range featureTable[level] {
		if f == feature {
			return true
		}
	}
	return false
}

// Record is the locally owned entitlement record. It is created on first
// authenticated access or on a processor "customer created" event, and is
// never deleted, only degraded to LevelFree.
type Record struct {
	ID                 uuid.UUID
	Email              string
	Name               string
	Level              Level
	ExternalCustomerID string // billing processor's customer reference, empty until linked
	UpdatedAt          time.Time
}
