package model

import (
	"fmt"
	"time"
)

// Customization is an operator override for a single rule, keyed by the rule's
// external id. A nil field means "no opinion"; the template default applies.
type Customization struct {
	Excluded      *bool
	ScoreOverride *int
}

// IsZero reports whether the customization carries no overrides at all.
func (c Customization) IsZero() bool {
	return c.Excluded == nil && c.ScoreOverride == nil
}

// Validate ensures any score override is within the accepted range.
func (c Customization) Validate() error {
	if c.ScoreOverride != nil {
		if err := ValidateScore(*c.ScoreOverride); err != nil {
			return err
		}
	}
	return nil
}

// Customizations maps external rule ids to operator overrides. All mutation
// goes through the With/Without reducers, which return a modified copy; the
// resolver is a pure function of the full mapping, so copies keep diffing
// deterministic.
type Customizations map[string]Customization

// Validate validates every customization in the mapping.
func (c Customizations) Validate() error {
	for id, cust := range c {
		if err := cust.Validate(); err != nil {
			return fmt.Errorf("customization for %q: %w", id, err)
		}
	}
	return nil
}

// WithExcluded returns a copy with the rule's exclusion flag set.
func (c Customizations) WithExcluded(externalID string, excluded bool) Customizations {
	out := c.clone()
	cust := out[externalID]
	cust.Excluded = &excluded
	out[externalID] = cust
	return out
}

// WithScore returns a copy with the rule's score override set. The override is
// retained even while the rule is excluded; it simply has no effect until the
// rule becomes active again.
func (c Customizations) WithScore(externalID string, score int) Customizations {
	out := c.clone()
	cust := out[externalID]
	cust.ScoreOverride = &score
	out[externalID] = cust
	return out
}

// WithoutScore returns a copy with the rule's score override removed. The
// rule's score reverts to the template default.
func (c Customizations) WithoutScore(externalID string) Customizations {
	out := c.clone()
	cust := out[externalID]
	cust.ScoreOverride = nil
	if cust.IsZero() {
		delete(out, externalID)
	} else {
		out[externalID] = cust
	}
	return out
}

// Without returns a copy with all overrides for the rule removed.
func (c Customizations) Without(externalID string) Customizations {
	out := c.clone()
	delete(out, externalID)
	return out
}

func (c Customizations) clone() Customizations {
	out := make(Customizations, len(c)+1)
	for id, cust := range c {
		out[id] = cust
	}
	return out
}

// InstanceOverride replaces a template's scoring profile for one instance.
// Instances carrying an override are excluded from automatic profile-shape
// updates; rule-score updates still apply.
type InstanceOverride struct {
	LastModifiedAt  time.Time
	InstanceID      string
	TemplateID      string
	QualityOverride *ScoringProfile
}
