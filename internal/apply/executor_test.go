package apply

import (
	"context"
	"errors"
	"testing"
	"time"

	"templarr/internal/common"
	"templarr/internal/model"
	"templarr/internal/service"
	"templarr/internal/testutil"
)

// fakeClient records operations in order and fails where told to.
type fakeClient struct {
	createErr  map[string]error
	updateErr  map[string]error
	deleteErr  map[int64]error
	profileErr error
	ops        []string
	nextID     int64
}

func (f *fakeClient) FetchState(ctx context.Context) (*model.RemoteState, error) {
	return &model.RemoteState{Rules: map[string]model.RemoteRule{}}, nil
}

func (f *fakeClient) CreateRule(ctx context.Context, create model.RuleCreate) (int64, error) {
	f.ops = append(f.ops, "create:"+create.ExternalID)
	if err := f.createErr[create.ExternalID]; err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeClient) UpdateRule(ctx context.Context, update model.RuleUpdate) error {
	f.ops = append(f.ops, "update:"+update.ExternalID)
	return f.updateErr[update.ExternalID]
}

func (f *fakeClient) DeleteRule(ctx context.Context, remoteID int64) error {
	f.ops = append(f.ops, "delete")
	return f.deleteErr[remoteID]
}

func (f *fakeClient) UpdateProfile(ctx context.Context, profile model.ScoringProfile, remoteID int64) error {
	f.ops = append(f.ops, "profile")
	return f.profileErr
}

var _ service.InstanceClient = (*fakeClient)(nil)

func testConfig() Config {
	return Config{
		Retry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
		ItemTimeout: time.Second,
	}
}

func fullPlan() *model.DiffPlan {
	return &model.DiffPlan{
		InstanceID: "inst-1",
		TemplateID: "tmpl-1",
		Creates:    []model.RuleCreate{{ExternalID: "new-rule", Name: "New Rule", Score: 10}},
		Updates:    []model.RuleUpdate{{ExternalID: "old-rule", Name: "Old Rule", RemoteID: 5, OldScore: 1, NewScore: 2, ScoreChanged: true}},
		Deletes:    []model.RuleDelete{{ExternalID: "dead-rule", Name: "Dead Rule", RemoteID: 7}},
		Profile:    model.ProfileDiff{Action: model.ProfileUpdate, RemoteID: 9, Changes: []model.FieldChange{{Field: "cutoff", Old: "SD", New: "HD-1080p"}}},
		Summary:    model.PlanSummary{Created: 1, Updated: 1, Deleted: 1, TotalChanges: 4},
	}
}

func TestApply_Ordering(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())
	client := &fakeClient{}

	result, err := executor.Apply(context.Background(), client, fullPlan(), model.ScoringProfile{Cutoff: "HD-1080p"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := []string{"create:new-rule", "update:old-rule", "delete", "profile"}
	if len(client.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", client.ops, want)
	}
	for i, op := range want {
		if client.ops[i] != op {
			t.Errorf("ops[%d] = %q, want %q", i, client.ops[i], op)
		}
	}
	if len(result.Succeeded) != 3 || !result.ProfileApplied {
		t.Errorf("result = %+v, want 3 successes and profile applied", result)
	}
	if !result.Complete() {
		t.Error("result should be complete")
	}
}

func TestApply_PartialFailure(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())
	client := &fakeClient{
		updateErr: map[string]error{"old-rule": &common.RemoteError{Op: "update", StatusCode: 400}},
	}

	result, err := executor.Apply(context.Background(), client, fullPlan(), model.ScoringProfile{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(result.Succeeded) != 2 {
		t.Errorf("succeeded = %+v, want create and delete", result.Succeeded)
	}
	if len(result.Failed) != 1 || result.Failed[0].ExternalID != "old-rule" {
		t.Fatalf("failed = %+v, want single failure of old-rule", result.Failed)
	}
	if result.Failed[0].ErrorKind != "remote" {
		t.Errorf("error kind = %q, want remote", result.Failed[0].ErrorKind)
	}
	if !result.ProfileApplied {
		t.Error("one rule failure must not abort the profile update")
	}
	if result.Complete() {
		t.Error("result with failures should not report complete")
	}

	// Partial success still records the application.
	tracked, err := store.GetTrackedApplication(context.Background(), "inst-1", "tmpl-1")
	if err != nil || tracked == nil {
		t.Fatalf("GetTrackedApplication() = %v, %v, want tracked row", tracked, err)
	}
}

func TestApply_Idempotent(t *testing.T) {
	t.Run("create treats already-exists as success", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		executor := NewExecutorWithConfig(store, testConfig())
		client := &fakeClient{
			createErr: map[string]error{"new-rule": common.ErrRemoteAlreadyExists},
		}

		result, err := executor.Apply(context.Background(), client, fullPlan(), model.ScoringProfile{})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if len(result.Failed) != 0 {
			t.Errorf("failed = %+v, want none", result.Failed)
		}
	})

	t.Run("delete treats not-found as success", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		executor := NewExecutorWithConfig(store, testConfig())
		client := &fakeClient{
			deleteErr: map[int64]error{7: common.ErrRemoteNotFound},
		}

		result, err := executor.Apply(context.Background(), client, fullPlan(), model.ScoringProfile{})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if len(result.Failed) != 0 {
			t.Errorf("failed = %+v, want none", result.Failed)
		}
	})
}

func TestApply_ConflictsBlockBeforeMutation(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())
	client := &fakeClient{}

	plan := fullPlan()
	plan.Conflicts = model.ConflictSet{{GroupID: "group-g", ActiveMemberIDs: []string{"b", "c"}}}

	_, err := executor.Apply(context.Background(), client, plan, model.ScoringProfile{})

	var conflictErr *common.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Apply() error = %v, want ConflictError", err)
	}
	if len(client.ops) != 0 {
		t.Errorf("ops = %v, conflicted plan must not touch the remote", client.ops)
	}
}

func TestApply_Cancellation(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())
	client := &fakeClient{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := executor.Apply(ctx, client, fullPlan(), model.ScoringProfile{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !result.Canceled {
		t.Error("result should be marked canceled")
	}
	if len(client.ops) != 0 {
		t.Errorf("ops = %v, canceled apply must not start new items", client.ops)
	}
}

func TestApply_TransientRetrySucceeds(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())

	attempts := 0
	client := &flakyClient{fakeClient: &fakeClient{}, failFirst: &attempts}

	plan := &model.DiffPlan{
		InstanceID: "inst-1",
		TemplateID: "tmpl-1",
		Creates:    []model.RuleCreate{{ExternalID: "new-rule", Name: "New Rule"}},
	}

	result, err := executor.Apply(context.Background(), client, plan, model.ScoringProfile{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(result.Succeeded) != 1 {
		t.Errorf("result = %+v, want success after retry", result)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestApply_TrackedApplicationTimestamps(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())

	first := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)
	executor.now = func() time.Time { return first }

	if _, err := executor.Apply(context.Background(), &fakeClient{}, fullPlan(), model.ScoringProfile{}); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}

	executor.now = func() time.Time { return second }
	if _, err := executor.Apply(context.Background(), &fakeClient{}, fullPlan(), model.ScoringProfile{}); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}

	tracked, err := store.GetTrackedApplication(context.Background(), "inst-1", "tmpl-1")
	if err != nil || tracked == nil {
		t.Fatalf("GetTrackedApplication() = %v, %v", tracked, err)
	}
	if !tracked.FirstAppliedAt.Equal(first) {
		t.Errorf("FirstAppliedAt = %v, want %v", tracked.FirstAppliedAt, first)
	}
	if !tracked.LastAppliedAt.Equal(second) {
		t.Errorf("LastAppliedAt = %v, want %v", tracked.LastAppliedAt, second)
	}
}

func TestApply_NoChangesSkipsTracking(t *testing.T) {
	store := testutil.SetupTestDB(t)
	executor := NewExecutorWithConfig(store, testConfig())

	plan := &model.DiffPlan{InstanceID: "inst-1", TemplateID: "tmpl-1"}
	result, err := executor.Apply(context.Background(), &fakeClient{}, plan, model.ScoringProfile{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.AnySucceeded() {
		t.Errorf("result = %+v, want nothing applied", result)
	}

	tracked, err := store.GetTrackedApplication(context.Background(), "inst-1", "tmpl-1")
	if err != nil {
		t.Fatalf("GetTrackedApplication() error = %v", err)
	}
	if tracked != nil {
		t.Errorf("tracked = %+v, empty apply must not record an application", tracked)
	}
}

// flakyClient fails the first create attempt with a transient error.
type flakyClient struct {
	*fakeClient
	failFirst *int
}

func (f *flakyClient) CreateRule(ctx context.Context, create model.RuleCreate) (int64, error) {
	*f.failFirst++
	if *f.failFirst == 1 {
		return 0, &common.RemoteError{Op: "create", StatusCode: 503, Transient: true}
	}
	return f.fakeClient.CreateRule(ctx, create)
}
