package taxonomy

import "testing"

func TestDefaultTaxonomy(t *testing.T) {
	tax := Default()

	mandatory := tax.MandatoryCategories()
	want := []string{"foundations", "functions", "data_ops"}
	if len(mandatory) != len(want) {
		t.Fatalf("expected %d mandatory categories, got %v", len(want), mandatory)
	}
	for i := range want {
		if mandatory[i] != want[i] {
			t.Fatalf("unexpected mandatory category order: %v", mandatory)
		}
	}

	if got := len(tax.MandatorySkills()); got != 15 {
		t.Fatalf("expected 15 mandatory skills, got %d", got)
	}

	skill, ok := tax.Skill("index_match")
	if !ok {
		t.Fatalf("expected index_match to exist")
	}
	if skill.Category != "functions" || skill.Tier != TierAdvanced {
		t.Fatalf("unexpected skill: %+v", skill)
	}

	if tax.Has("macros") {
		t.Fatalf("did not expect macros skill")
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cats := []Category{{ID: "core", Mandatory: true}}

	cases := []struct {
		name       string
		categories []Category
		skills     []Skill
	}{
		{name: "no categories", skills: []Skill{{ID: "a", Category: "core", Tier: 1}}},
		{name: "no skills", categories: cats},
		{name: "unknown category", categories: cats, skills: []Skill{{ID: "a", Category: "other", Tier: 1}}},
		{name: "bad tier", categories: cats, skills: []Skill{{ID: "a", Category: "core", Tier: 4}}},
		{name: "duplicate skill", categories: cats, skills: []Skill{{ID: "a", Category: "core", Tier: 1}, {ID: "a", Category: "core", Tier: 2}}},
		{name: "no mandatory", categories: []Category{{ID: "core"}}, skills: []Skill{{ID: "a", Category: "core", Tier: 1}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.categories, tc.skills); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseFillsLabels(t *testing.T) {
	tax, err := Parse([]byte(`
categories:
  - id: core
    mandatory: true
skills:
  - {id: b, category: core, tier: 2}
  - {id: a, category: core, tier: 1}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	skills := tax.SkillsIn("core")
	if len(skills) != 2 || skills[0] != "a" || skills[1] != "b" {
		t.Fatalf("expected sorted skills, got %v", skills)
	}

	s, _ := tax.Skill("a")
	if s.Label != "a" {
		t.Fatalf("expected label to default to id, got %q", s.Label)
	}
}

func TestClampTier(t *testing.T) {
	if ClampTier(0) != TierFoundation || ClampTier(7) != TierAdvanced || ClampTier(2) != TierIntermediate {
		t.Fatalf("unexpected clamp results")
	}
}
