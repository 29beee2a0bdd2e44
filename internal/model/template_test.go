package model

import (
	"strings"
	"testing"
)

func validTemplate() *Template {
	return &Template{
		ID:   "tmpl-1",
		Name: "Valid",
		Items: []ClassificationRule{
			{ExternalID: "rule-a", Name: "Rule A", Origin: OriginTemplate},
			{ExternalID: "rule-b", Name: "Rule B", Origin: OriginUserAdded},
		},
		Groups: []RuleGroup{
			{ExternalID: "group-g", Name: "Group G", Enabled: true, Members: []string{"rule-a", "rule-b"}},
		},
		Sync: SyncSettings{Mode: SyncModeManual},
	}
}

func TestTemplateValidate(t *testing.T) {
	tests := []struct {
		mutate  func(*Template)
		name    string
		wantErr string
	}{
		{
			name:   "valid template passes",
			mutate: func(*Template) {},
		},
		{
			name:    "missing id",
			mutate:  func(tmpl *Template) { tmpl.ID = "" },
			wantErr: "id is required",
		},
		{
			name:    "duplicate rule id",
			mutate:  func(tmpl *Template) { tmpl.Items[1].ExternalID = "rule-a" },
			wantErr: "duplicate rule id",
		},
		{
			name:    "group references unknown rule",
			mutate:  func(tmpl *Template) { tmpl.Groups[0].Members = []string{"rule-a", "ghost"} },
			wantErr: "unknown rule",
		},
		{
			name:    "invalid sync mode",
			mutate:  func(tmpl *Template) { tmpl.Sync.Mode = "yolo" },
			wantErr: "invalid sync mode",
		},
		{
			name:    "rule with bad origin",
			mutate:  func(tmpl *Template) { tmpl.Items[0].Origin = "alien" },
			wantErr: "invalid origin",
		},
		{
			name:    "default member outside group",
			mutate:  func(tmpl *Template) { tmpl.Groups[0].DefaultMemberID = "ghost" },
			wantErr: "not a group member",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template := validTemplate()
			tt.mutate(template)
			err := template.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTemplateLookups(t *testing.T) {
	template := validTemplate()

	if rule := template.Rule("rule-a"); rule == nil || rule.Name != "Rule A" {
		t.Errorf("Rule(rule-a) = %+v", rule)
	}
	if template.Rule("ghost") != nil {
		t.Error("Rule(ghost) should be nil")
	}
	if group := template.Group("group-g"); group == nil || !group.HasMember("rule-b") {
		t.Errorf("Group(group-g) = %+v", group)
	}
	if template.Group("ghost") != nil {
		t.Error("Group(ghost) should be nil")
	}
}

func TestDiffPlanDescribe(t *testing.T) {
	plan := &DiffPlan{Profile: ProfileDiff{Action: ProfileNoChange}}
	if !plan.InSync() || plan.Describe() != "in sync" {
		t.Errorf("empty plan: InSync=%v Describe=%q", plan.InSync(), plan.Describe())
	}

	plan.Summary = PlanSummary{Created: 2, Updated: 1, TotalChanges: 3}
	if plan.InSync() {
		t.Error("plan with changes must not be in sync")
	}
	if !strings.Contains(plan.Describe(), "2 to create") {
		t.Errorf("Describe() = %q", plan.Describe())
	}
}
