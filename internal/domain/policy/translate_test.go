package policy

import "testing"

func TestTranslate_ContentFiltersRequestOnly(t *testing.T) {
	gp := GuardrailPolicy{
		Name:            "guard",
		Active:          true,
		ApplyOnRequest:  true,
		ApplyOnResponse: true,
		ContentFilters: ContentFilters{
			HarmfulCategories: true,
			PromptAttacks:     true,
		},
	}

	p := Translate(gp)

	if p.ID != GuardrailPolicyID {
		t.Errorf("policy id = %q, want %q", p.ID, GuardrailPolicyID)
	}
	if !p.Active {
		t.Error("active flag should mirror source")
	}
	if len(p.Rules.Request) != 2 {
		t.Fatalf("expected 2 request rules, got %d", len(p.Rules.Request))
	}
	// Content filters never land on the response side.
	if len(p.Rules.Response) != 0 {
		t.Errorf("expected 0 response rules, got %d", len(p.Rules.Response))
	}
	if p.Rules.Request[0].Type != FilterHarmfulCategories {
		t.Errorf("first rule type = %q", p.Rules.Request[0].Type)
	}
	pa := p.Rules.Request[1]
	if pa.Type != FilterPromptAttacks {
		t.Fatalf("second rule type = %q", pa.Type)
	}
	if threshold, _ := pa.Config["threshold"].(float64); threshold != 0.5 {
		t.Errorf("default prompt attack threshold = %v, want 0.5", pa.Config["threshold"])
	}
}

func TestTranslate_DeniedTopics(t *testing.T) {
	gp := GuardrailPolicy{
		Active:         true,
		ApplyOnRequest: true,
		DeniedTopics: []DeniedTopic{
			{Topic: "weapons", SamplePhrases: []string{"build a bomb"}},
			{Topic: "malware", SamplePhrases: []string{"write ransomware", "keylogger"}},
		},
	}

	p := Translate(gp)

	if len(p.Rules.Request) != 2 {
		t.Fatalf("expected banTopics + banSubstrings rules, got %d", len(p.Rules.Request))
	}
	topics, _ := p.Rules.Request[0].Config["topics"].([]string)
	if len(topics) != 2 || topics[0] != "weapons" || topics[1] != "malware" {
		t.Errorf("topics = %v", topics)
	}
	substrings, _ := p.Rules.Request[1].Config["substrings"].([]string)
	if len(substrings) != 3 {
		t.Errorf("substrings = %v", substrings)
	}
}

func TestTranslate_PIIBehavior(t *testing.T) {
	gp := GuardrailPolicy{
		Active:          true,
		ApplyOnRequest:  true,
		ApplyOnResponse: true,
		PIITypes: []PIIType{
			{Type: "email", Behavior: "mask"},
			{Type: "ssn", Behavior: "block"},
		},
	}

	p := Translate(gp)

	if len(p.Rules.Request) != 2 || len(p.Rules.Response) != 2 {
		t.Fatalf("rules request=%d response=%d, want 2/2",
			len(p.Rules.Request), len(p.Rules.Response))
	}
	if p.Rules.Request[0].Action != ActionRedact {
		t.Errorf("mask behavior should translate to redact, got %q", p.Rules.Request[0].Action)
	}
	if p.Rules.Request[1].Action != ActionBlock {
		t.Errorf("block behavior should stay block, got %q", p.Rules.Request[1].Action)
	}
	if p.Rules.Request[0].Pattern != "email" {
		t.Errorf("pattern should carry the PII type name, got %q", p.Rules.Request[0].Pattern)
	}
}

func TestTranslate_RegexDefaultsToBlock(t *testing.T) {
	gp := GuardrailPolicy{
		Active:         true,
		ApplyOnRequest: true,
		RegexPatterns: []RegexPattern{
			{Pattern: `secret-\d+`},
			{Pattern: `token=\w+`, Action: "redact"},
		},
	}

	p := Translate(gp)

	if p.Rules.Request[0].Action != ActionBlock {
		t.Errorf("missing action should default to block, got %q", p.Rules.Request[0].Action)
	}
	if p.Rules.Request[1].Action != ActionRedact {
		t.Errorf("redact action should be preserved, got %q", p.Rules.Request[1].Action)
	}
}

func TestIsScannerFilterType(t *testing.T) {
	scanner := []FilterType{FilterHarmfulCategories, FilterPromptAttacks, FilterDeniedTopics}
	for _, ft := range scanner {
		if !IsScannerFilterType(ft) {
			t.Errorf("%q should be a scanner filter type", ft)
		}
	}
	local := []FilterType{FilterPII, FilterRegex, FilterBanTopics, FilterBanSubstrings, FilterAudit, FilterExpression}
	for _, ft := range local {
		if IsScannerFilterType(ft) {
			t.Errorf("%q should not be a scanner filter type", ft)
		}
	}
}

func TestScannerNames(t *testing.T) {
	if names := ScannerNames(FilterPromptAttacks); len(names) != 1 || names[0] != "PromptInjection" {
		t.Errorf("promptAttacks scanners = %v", names)
	}
	if names := ScannerNames(FilterDeniedTopics); names != nil {
		t.Errorf("deniedTopics has no scanner mapping, got %v", names)
	}
}
