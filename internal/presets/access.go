package presets

import (
	"strings"

	"preset-workers/internal/common/config"
	"preset-workers/internal/common/metrics"
	"preset-workers/pkg/registry"
)

// Tier is the caller's access level. The set is open; unknown tiers are
// treated with the demo policy.
type Tier string

const (
	TierDemo       Tier = "demo"
	TierSubscriber Tier = "subscriber"
)

// ParseTier lower-cases and trims s. Empty input is the demo tier.
func ParseTier(s string) Tier {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TierDemo
	}
	return Tier(s)
}

// PrefersWatermark is true for every tier except subscriber.
func (t Tier) PrefersWatermark() bool {
	return t != TierSubscriber
}

// DenialReason is a closed set of reasons driving the upgrade prompt.
type DenialReason string

const (
	ReasonRequiresSubscription  DenialReason = "requiresSubscription"
	ReasonCustomInputNotAllowed DenialReason = "customInputNotAllowed"
)

// Decision is the access gate's verdict. Reason is empty when Allowed.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"denialReason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenialReason) Decision {
	metrics.AccessDenials.WithLabelValues(string(reason)).Inc()
	return Decision{Allowed: false, Reason: reason}
}

// FeaturePolicy lists what one tier may do.
type FeaturePolicy struct {
	RestrictedModifiers map[string]struct{}
	RestrictedSubjects  map[string]struct{}
	// ToolRestrictions applies the per-tool restricted values from the
	// tool registry.
	ToolRestrictions bool
	AllowCustomInput bool
	AllowGeneration  bool
}

// PolicyTable maps tiers to their policies.
type PolicyTable map[Tier]FeaturePolicy

// DefaultPolicies restricts "custom" modifiers, custom input and live
// generation for demo, and allows everything for subscriber.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		TierDemo: {
			RestrictedModifiers: toSet([]string{"custom"}),
			ToolRestrictions:    true,
		},
		TierSubscriber: {
			AllowCustomInput: true,
			AllowGeneration:  true,
		},
	}
}

// PoliciesFromConfig overlays configured tiers on the defaults.
func PoliciesFromConfig(cfg config.AccessConfig) PolicyTable {
	table := DefaultPolicies()
	for name, p := range cfg.Policies {
		tier := ParseTier(name)
		policy := FeaturePolicy{
			RestrictedModifiers: toSet(p.RestrictedModifiers),
			RestrictedSubjects:  toSet(p.RestrictedSubjects),
			ToolRestrictions:    p.ToolRestrictions,
			AllowCustomInput:    p.AllowCustomInput,
			AllowGeneration:     p.AllowGeneration,
		}
		table[tier] = policy
	}
	return table
}

// GenerationRequest is what the gate needs to know about a live generation.
type GenerationRequest struct {
	ToolType    ToolType `json:"toolType"`
	SubjectRef  string   `json:"subjectRef,omitempty"`
	ModifierRef string   `json:"modifierRef,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	CustomInput bool     `json:"customInput,omitempty"`
}

// Gate decides whether a tier may resolve a selection or start a generation.
type Gate struct {
	policies    PolicyTable
	defaultTier Tier
	tools       *registry.ToolRegistry
}

func NewGate(policies PolicyTable, tools *registry.ToolRegistry) *Gate {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if tools == nil {
		tools = registry.Default()
	}
	return &Gate{policies: policies, defaultTier: TierDemo, tools: tools}
}

// NewGateFromConfig builds a gate from the access config section. Tiers with
// no policy fall back to cfg.DefaultTier.
func NewGateFromConfig(cfg config.AccessConfig, tools *registry.ToolRegistry) *Gate {
	g := NewGate(PoliciesFromConfig(cfg), tools)
	if _, ok := g.policies[ParseTier(cfg.DefaultTier)]; ok {
		g.defaultTier = ParseTier(cfg.DefaultTier)
	}
	return g
}

func (g *Gate) policy(tier Tier) FeaturePolicy {
	if p, ok := g.policies[tier]; ok {
		return p
	}
	return g.policies[g.defaultTier]
}

// Check is consulted before resolving a selection.
func (g *Gate) Check(tier Tier, sel Selection) Decision {
	p := g.policy(tier)

	if sel.CustomInput && !p.AllowCustomInput {
		return deny(ReasonCustomInputNotAllowed)
	}
	if g.restricted(p, sel.ToolType, sel.SubjectRef, sel.ModifierRef) {
		return deny(ReasonRequiresSubscription)
	}
	return allow()
}

// CheckGeneration is consulted before any paid generation call.
func (g *Gate) CheckGeneration(tier Tier, req GenerationRequest) Decision {
	p := g.policy(tier)

	if (req.CustomInput || strings.TrimSpace(req.Prompt) != "") && !p.AllowCustomInput {
		return deny(ReasonCustomInputNotAllowed)
	}
	if !p.AllowGeneration {
		return deny(ReasonRequiresSubscription)
	}
	if g.restricted(p, req.ToolType, req.SubjectRef, req.ModifierRef) {
		return deny(ReasonRequiresSubscription)
	}
	return allow()
}

func (g *Gate) restricted(p FeaturePolicy, tool ToolType, subject, modifier string) bool {
	if _, ok := p.RestrictedModifiers[modifier]; ok && modifier != "" {
		return true
	}
	if _, ok := p.RestrictedSubjects[subject]; ok && subject != "" {
		return true
	}
	if !p.ToolRestrictions || tool == "" {
		return false
	}
	profile, ok := g.tools.Profile(string(tool))
	if !ok {
		return false
	}
	return (modifier != "" && contains(profile.RestrictedModifiers, modifier)) ||
		(subject != "" && contains(profile.RestrictedSubjects, subject))
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
