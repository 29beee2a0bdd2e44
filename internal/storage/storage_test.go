package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"templarr/internal/common"
	"templarr/internal/model"
	"templarr/internal/storage"
	"templarr/internal/testutil"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func storedTemplate() *model.Template {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return &model.Template{
		ID:            "tmpl-1",
		Name:          "Stored Template",
		ServiceKind:   "sonarr",
		SourceVersion: "v4",
		Items: []model.ClassificationRule{
			{
				ExternalID:     "rule-a",
				Name:           "Rule A",
				DefaultScore:   10,
				ScoreOverride:  intPtr(12),
				ConditionFlags: map[string]bool{"negate": true},
				Origin:         model.OriginTemplate,
				Required:       true,
				AddedAt:        at,
			},
			{
				ExternalID:       "rule-b",
				Name:             "Rule B",
				DefaultScore:     20,
				Origin:           model.OriginUserAdded,
				Optional:         true,
				AddedAt:          at,
				Deprecated:       true,
				DeprecatedAt:     &at,
				DeprecatedReason: "removed from source version v4",
			},
		},
		Groups: []model.RuleGroup{
			{
				ExternalID:        "group-g",
				Name:              "Group G",
				Enabled:           true,
				Members:           []string{"rule-a", "rule-b"},
				MutuallyExclusive: true,
				DefaultMemberID:   "rule-a",
			},
		},
		Profile: model.ScoringProfile{Cutoff: "HD-1080p", MinScore: -50, CutoffScore: 200},
		Sync:    model.SyncSettings{Mode: model.SyncModeNotify, DeleteRemovedOnSync: true},
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	got, err := store.GetTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}

	if got.Name != "Stored Template" || got.ServiceKind != "sonarr" || got.SourceVersion != "v4" {
		t.Errorf("template = %+v, header fields did not survive", got)
	}
	if got.Profile.Cutoff != "HD-1080p" || got.Profile.MinScore != -50 || got.Profile.CutoffScore != 200 {
		t.Errorf("profile = %+v, want stored values", got.Profile)
	}
	if got.Sync.Mode != model.SyncModeNotify || !got.Sync.DeleteRemovedOnSync {
		t.Errorf("sync = %+v, want notify with deletes enabled", got.Sync)
	}

	ruleA := got.Rule("rule-a")
	if ruleA == nil {
		t.Fatal("rule-a missing")
	}
	if ruleA.ScoreOverride == nil || *ruleA.ScoreOverride != 12 {
		t.Errorf("ScoreOverride = %v, want 12", ruleA.ScoreOverride)
	}
	if !ruleA.ConditionFlags["negate"] || !ruleA.Required {
		t.Errorf("rule-a = %+v, flags or required bit lost", ruleA)
	}

	ruleB := got.Rule("rule-b")
	if ruleB == nil {
		t.Fatal("rule-b missing")
	}
	if ruleB.Origin != model.OriginUserAdded || !ruleB.Deprecated || ruleB.DeprecatedAt == nil {
		t.Errorf("rule-b = %+v, provenance fields lost", ruleB)
	}
	if ruleB.DeprecatedReason != "removed from source version v4" {
		t.Errorf("DeprecatedReason = %q", ruleB.DeprecatedReason)
	}

	if len(got.Groups) != 1 {
		t.Fatalf("groups = %+v, want one", got.Groups)
	}
	group := got.Groups[0]
	if group.DefaultMemberID != "rule-a" || !group.MutuallyExclusive || len(group.Members) != 2 {
		t.Errorf("group = %+v, fields lost", group)
	}
}

func TestTemplateUpsertReplacesRules(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	template := storedTemplate()
	if err := store.SaveTemplate(ctx, template); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	template.Items = template.Items[:1]
	template.Groups = nil
	template.SourceVersion = "v5"
	if err := store.SaveTemplate(ctx, template); err != nil {
		t.Fatalf("second SaveTemplate() error = %v", err)
	}

	got, err := store.GetTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if len(got.Items) != 1 || len(got.Groups) != 0 || got.SourceVersion != "v5" {
		t.Errorf("template = %+v, want wholesale replacement", got)
	}
}

func TestTemplateNotFound(t *testing.T) {
	store := testutil.SetupTestDB(t)

	_, err := store.GetTemplate(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("GetTemplate() error = %v, want ErrNotFound", err)
	}

	err = store.DeleteTemplate(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("DeleteTemplate() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTemplateRule(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}
	if err := store.DeleteTemplateRule(ctx, "tmpl-1", "rule-b"); err != nil {
		t.Fatalf("DeleteTemplateRule() error = %v", err)
	}

	got, err := store.GetTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if got.Rule("rule-b") != nil {
		t.Error("rule-b should be gone")
	}

	err = store.DeleteTemplateRule(ctx, "tmpl-1", "rule-b")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRuleProvenance(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rule := &model.ClassificationRule{
		ExternalID:       "rule-a",
		Origin:           model.OriginTemplate,
		Deprecated:       true,
		DeprecatedAt:     &at,
		DeprecatedReason: "removed from source version v5",
	}
	if err := store.UpdateRuleProvenance(ctx, "tmpl-1", rule); err != nil {
		t.Fatalf("UpdateRuleProvenance() error = %v", err)
	}

	got, err := store.GetTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	updated := got.Rule("rule-a")
	if !updated.Deprecated || updated.DeprecatedReason != "removed from source version v5" {
		t.Errorf("rule-a = %+v, provenance not updated", updated)
	}
	// Non-provenance fields stay put.
	if updated.DefaultScore != 10 || !updated.Required {
		t.Errorf("rule-a = %+v, non-provenance fields were touched", updated)
	}
}

func TestCustomizationScopes(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	base := model.Customizations{
		"rule-a": {ScoreOverride: intPtr(42)},
		"rule-b": {Excluded: boolPtr(true)},
	}
	scoped := model.Customizations{
		"rule-a": {Excluded: boolPtr(true), ScoreOverride: intPtr(7)},
	}

	if err := store.SaveCustomizations(ctx, "tmpl-1", "", base); err != nil {
		t.Fatalf("SaveCustomizations(template scope) error = %v", err)
	}
	if err := store.SaveCustomizations(ctx, "tmpl-1", "inst-1", scoped); err != nil {
		t.Fatalf("SaveCustomizations(instance scope) error = %v", err)
	}

	gotBase, err := store.GetCustomizations(ctx, "tmpl-1", "")
	if err != nil {
		t.Fatalf("GetCustomizations() error = %v", err)
	}
	if len(gotBase) != 2 || *gotBase["rule-a"].ScoreOverride != 42 {
		t.Errorf("template scope = %+v, want the base mapping", gotBase)
	}

	gotScoped, err := store.GetCustomizations(ctx, "tmpl-1", "inst-1")
	if err != nil {
		t.Fatalf("GetCustomizations(inst-1) error = %v", err)
	}
	if len(gotScoped) != 1 || *gotScoped["rule-a"].ScoreOverride != 7 || !*gotScoped["rule-a"].Excluded {
		t.Errorf("instance scope = %+v, want only the refinement", gotScoped)
	}

	// Empty save clears one scope, leaves the other alone.
	if err := store.SaveCustomizations(ctx, "tmpl-1", "inst-1", nil); err != nil {
		t.Fatalf("clearing SaveCustomizations() error = %v", err)
	}
	gotScoped, err = store.GetCustomizations(ctx, "tmpl-1", "inst-1")
	if err != nil {
		t.Fatalf("GetCustomizations() error = %v", err)
	}
	if len(gotScoped) != 0 {
		t.Errorf("instance scope = %+v, want empty after clear", gotScoped)
	}
	gotBase, err = store.GetCustomizations(ctx, "tmpl-1", "")
	if err != nil {
		t.Fatalf("GetCustomizations() error = %v", err)
	}
	if len(gotBase) != 2 {
		t.Errorf("template scope = %+v, must survive the instance-scope clear", gotBase)
	}
}

func TestCustomizationZeroEntriesDropped(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	customizations := model.Customizations{
		"rule-a": {},
		"rule-b": {ScoreOverride: intPtr(5)},
	}
	if err := store.SaveCustomizations(ctx, "tmpl-1", "", customizations); err != nil {
		t.Fatalf("SaveCustomizations() error = %v", err)
	}

	got, err := store.GetCustomizations(ctx, "tmpl-1", "")
	if err != nil {
		t.Fatalf("GetCustomizations() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("customizations = %+v, zero-value entries should not persist", got)
	}
}

func TestInstanceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	instance := &model.Instance{ID: "inst-1", Name: "Main", URL: "http://localhost:8989", APIKey: "key", ServiceKind: "sonarr"}
	if err := store.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("SaveInstance() error = %v", err)
	}

	got, err := store.GetInstance(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetInstance() error = %v", err)
	}
	if got.URL != "http://localhost:8989" || got.APIKey != "key" {
		t.Errorf("instance = %+v, fields lost", got)
	}

	instance.Name = "Renamed"
	if err := store.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("re-SaveInstance() error = %v", err)
	}
	got, err = store.GetInstance(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetInstance() error = %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}

	if err := store.DeleteInstance(ctx, "inst-1"); err != nil {
		t.Fatalf("DeleteInstance() error = %v", err)
	}
	if _, err := store.GetInstance(ctx, "inst-1"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("GetInstance() error = %v, want ErrNotFound", err)
	}
}

func TestInstanceLinks(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	for _, id := range []string{"inst-1", "inst-2"} {
		instance := &model.Instance{ID: id, Name: id, URL: "http://localhost:7878", APIKey: "key", ServiceKind: "radarr"}
		if err := store.SaveInstance(ctx, instance); err != nil {
			t.Fatalf("SaveInstance(%s) error = %v", id, err)
		}
	}

	if err := store.LinkInstance(ctx, "inst-1", "tmpl-1"); err != nil {
		t.Fatalf("LinkInstance() error = %v", err)
	}
	if err := store.LinkInstance(ctx, "inst-1", "tmpl-1"); !errors.Is(err, common.ErrDuplicateEntry) {
		t.Fatalf("duplicate LinkInstance() error = %v, want ErrDuplicateEntry", err)
	}
	if err := store.LinkInstance(ctx, "inst-2", "tmpl-1"); err != nil {
		t.Fatalf("LinkInstance() error = %v", err)
	}

	linked, err := store.LinkedInstances(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("LinkedInstances() error = %v", err)
	}
	if len(linked) != 2 || linked[0].ID != "inst-1" || linked[1].ID != "inst-2" {
		t.Errorf("linked = %+v, want both instances in id order", linked)
	}

	if err := store.UnlinkInstance(ctx, "inst-1", "tmpl-1"); err != nil {
		t.Fatalf("UnlinkInstance() error = %v", err)
	}
	linked, err = store.LinkedInstances(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("LinkedInstances() error = %v", err)
	}
	if len(linked) != 1 || linked[0].ID != "inst-2" {
		t.Errorf("linked = %+v, want only inst-2", linked)
	}
}

func TestInstanceOverrideRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	if err := store.SaveTemplate(ctx, storedTemplate()); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}
	instance := &model.Instance{ID: "inst-1", Name: "Main", URL: "http://localhost:8989", APIKey: "key", ServiceKind: "sonarr"}
	if err := store.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("SaveInstance() error = %v", err)
	}

	got, err := store.GetInstanceOverride(ctx, "inst-1", "tmpl-1")
	if err != nil {
		t.Fatalf("GetInstanceOverride() error = %v", err)
	}
	if got != nil {
		t.Errorf("override = %+v, want nil before save", got)
	}

	override := &model.InstanceOverride{
		InstanceID:      "inst-1",
		TemplateID:      "tmpl-1",
		QualityOverride: &model.ScoringProfile{Cutoff: "SD", MinScore: -100, CutoffScore: 0},
	}
	if err := store.SaveInstanceOverride(ctx, override); err != nil {
		t.Fatalf("SaveInstanceOverride() error = %v", err)
	}

	got, err = store.GetInstanceOverride(ctx, "inst-1", "tmpl-1")
	if err != nil {
		t.Fatalf("GetInstanceOverride() error = %v", err)
	}
	if got == nil || got.QualityOverride == nil {
		t.Fatalf("override = %+v, want stored profile", got)
	}
	if got.QualityOverride.Cutoff != "SD" || got.QualityOverride.MinScore != -100 {
		t.Errorf("profile = %+v, fields lost", got.QualityOverride)
	}

	if err := store.DeleteInstanceOverride(ctx, "inst-1", "tmpl-1"); err != nil {
		t.Fatalf("DeleteInstanceOverride() error = %v", err)
	}
	got, err = store.GetInstanceOverride(ctx, "inst-1", "tmpl-1")
	if err != nil {
		t.Fatalf("GetInstanceOverride() error = %v", err)
	}
	if got != nil {
		t.Errorf("override = %+v, want nil after delete", got)
	}
}

func TestTrackedApplicationUpsert(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	got, err := store.GetTrackedApplication(ctx, "inst-1", "tmpl-1")
	if err != nil {
		t.Fatalf("GetTrackedApplication() error = %v", err)
	}
	if got != nil {
		t.Errorf("tracked = %+v, want nil before first apply", got)
	}

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 7)

	if err := store.UpsertTrackedApplication(ctx, "inst-1", "tmpl-1", first); err != nil {
		t.Fatalf("UpsertTrackedApplication() error = %v", err)
	}
	if err := store.UpsertTrackedApplication(ctx, "inst-1", "tmpl-1", second); err != nil {
		t.Fatalf("second UpsertTrackedApplication() error = %v", err)
	}

	got, err = store.GetTrackedApplication(ctx, "inst-1", "tmpl-1")
	if err != nil {
		t.Fatalf("GetTrackedApplication() error = %v", err)
	}
	if !got.FirstAppliedAt.Equal(first) {
		t.Errorf("FirstAppliedAt = %v, must never be rewritten", got.FirstAppliedAt)
	}
	if !got.LastAppliedAt.Equal(second) {
		t.Errorf("LastAppliedAt = %v, want %v", got.LastAppliedAt, second)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)

	// SetupTestDB already migrated once.
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestNilContextRejected(t *testing.T) {
	store := testutil.SetupTestDB(t)

	//nolint:staticcheck
	if _, err := store.GetTemplate(nil, "tmpl-1"); !errors.Is(err, storage.ErrNilContext) {
		t.Errorf("GetTemplate(nil ctx) error = %v, want ErrNilContext", err)
	}
	if _, err := store.GetTemplate(context.Background(), ""); !errors.Is(err, storage.ErrEmptyString) {
		t.Errorf("GetTemplate(empty id) error = %v, want ErrEmptyString", err)
	}
}
