package policy

import "strings"

// GuardrailPolicy is the authoring form served by the policy store.
// It is never mutated locally; Translate derives the internal Policy.
type GuardrailPolicy struct {
	Name            string         `json:"name"`
	Active          bool           `json:"active"`
	ApplyOnRequest  bool           `json:"applyOnRequest"`
	ApplyOnResponse bool           `json:"applyOnResponse"`
	ContentFilters  ContentFilters `json:"contentFilters"`
	DeniedTopics    []DeniedTopic  `json:"deniedTopics"`
	PIITypes        []PIIType      `json:"piiTypes"`
	RegexPatterns   []RegexPattern `json:"regexPatterns"`
}

// ContentFilters are the coarse content-filter toggles of a guardrail
// policy.
type ContentFilters struct {
	HarmfulCategories bool    `json:"harmfulCategories"`
	PromptAttacks     bool    `json:"promptAttacks"`
	PromptThreshold   float64 `json:"promptAttacksThreshold"`
}

// DeniedTopic is a banned topic with operator-supplied sample phrases.
type DeniedTopic struct {
	Topic         string   `json:"topic"`
	SamplePhrases []string `json:"samplePhrases"`
}

// PIIType selects a PII pattern and the behavior on match.
type PIIType struct {
	Type     string `json:"type"`
	Behavior string `json:"behavior"` // "block" or "mask"
}

// RegexPattern is an operator-supplied regular expression rule.
type RegexPattern struct {
	Pattern string `json:"pattern"`
	Action  string `json:"action"`
}

// defaultPromptAttackThreshold applies when the authoring form does not
// carry one.
const defaultPromptAttackThreshold = 0.5

// Translate converts a guardrail policy from its authoring form into
// the internal Policy shape:
//
//   - content-filter toggles become request-side scanner rules
//   - denied topics become banTopics/banSubstrings rules
//   - PII types and regex patterns become local matcher rules
//
// The resulting policy always has ID GuardrailPolicyID; its active flag
// mirrors the source.
func Translate(gp GuardrailPolicy) Policy {
	p := Policy{
		ID:            GuardrailPolicyID,
		Name:          gp.Name,
		Active:        gp.Active,
		DefaultAction: ActionBlock,
	}

	// Content filters apply to requests only: the remote scanner
	// supports the "prompt" scan type exclusively.
	if gp.ContentFilters.HarmfulCategories {
		p.Rules.Request = append(p.Rules.Request, FilterRule{
			Type:   FilterHarmfulCategories,
			Action: ActionBlock,
		})
	}
	if gp.ContentFilters.PromptAttacks {
		threshold := gp.ContentFilters.PromptThreshold
		if threshold <= 0 {
			threshold = defaultPromptAttackThreshold
		}
		p.Rules.Request = append(p.Rules.Request, FilterRule{
			Type:   FilterPromptAttacks,
			Action: ActionBlock,
			Config: map[string]interface{}{"threshold": threshold},
		})
	}

	if len(gp.DeniedTopics) > 0 {
		topics := make([]string, 0, len(gp.DeniedTopics))
		var substrings []string
		for _, dt := range gp.DeniedTopics {
			if t := strings.TrimSpace(dt.Topic); t != "" {
				topics = append(topics, t)
			}
			substrings = append(substrings, dt.SamplePhrases...)
		}
		appendBoth(&p.Rules, gp, FilterRule{
			Type:   FilterBanTopics,
			Action: ActionBlock,
			Config: map[string]interface{}{"topics": topics},
		})
		appendBoth(&p.Rules, gp, FilterRule{
			Type:   FilterBanSubstrings,
			Action: ActionBlock,
			Config: map[string]interface{}{"substrings": substrings},
		})
	}

	for _, pt := range gp.PIITypes {
		action := ActionBlock
		if strings.EqualFold(pt.Behavior, "mask") {
			action = ActionRedact
		}
		appendBoth(&p.Rules, gp, FilterRule{
			Type:    FilterPII,
			Pattern: pt.Type,
			Action:  action,
		})
	}

	for _, rp := range gp.RegexPatterns {
		action := RuleAction(rp.Action)
		if action != ActionRedact {
			action = ActionBlock
		}
		appendBoth(&p.Rules, gp, FilterRule{
			Type:    FilterRegex,
			Pattern: rp.Pattern,
			Action:  action,
		})
	}

	return p
}

// appendBoth adds the rule to the request and/or response rule lists
// according to the policy's apply-on flags.
func appendBoth(rs *RuleSet, gp GuardrailPolicy, rule FilterRule) {
	if gp.ApplyOnRequest {
		rs.Request = append(rs.Request, rule)
	}
	if gp.ApplyOnResponse {
		rs.Response = append(rs.Response, rule)
	}
}
