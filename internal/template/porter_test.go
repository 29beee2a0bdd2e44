package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templarr/internal/model"
)

const validFile = `{
  "metadata": {"author": "ops", "tags": ["anime"]},
  "template": {
    "id": "tmpl-1",
    "name": "Anime Template",
    "serviceKind": "sonarr",
    "sourceVersion": "v2",
    "rules": [
      {"externalId": "rule-a", "name": "Rule A", "defaultScore": 10, "required": true},
      {"externalId": "rule-b", "name": "Rule B", "defaultScore": 20, "default": true},
      {"externalId": "rule-c", "name": "Rule C", "defaultScore": 30, "scoreOverride": 35}
    ],
    "groups": [
      {"externalId": "group-g", "name": "Group G", "enabled": true, "members": ["rule-b", "rule-c"], "mutuallyExclusive": true, "defaultMemberId": "rule-b"}
    ],
    "scoringProfile": {"cutoff": "HD-1080p", "minScore": 0, "cutoffScore": 100},
    "syncSettings": {"mode": "notify", "deleteRemovedOnSync": true}
  }
}`

func TestImport_Valid(t *testing.T) {
	result, err := Import([]byte(validFile))
	require.NoError(t, err)
	require.True(t, result.OK(), "issues: %v", result.Issues)

	template := result.Template
	assert.Equal(t, "tmpl-1", template.ID)
	assert.Equal(t, "sonarr", template.ServiceKind)
	assert.Equal(t, "v2", template.SourceVersion)
	require.Len(t, template.Items, 3)

	ruleC := template.Rule("rule-c")
	require.NotNil(t, ruleC.ScoreOverride)
	assert.Equal(t, 35, *ruleC.ScoreOverride)

	ruleA := template.Rule("rule-a")
	assert.True(t, ruleA.Required)
	assert.Equal(t, model.OriginTemplate, ruleA.Origin)

	require.Len(t, template.Groups, 1)
	assert.Equal(t, "rule-b", template.Groups[0].DefaultMemberID)
	assert.Equal(t, model.SyncModeNotify, template.Sync.Mode)
	assert.True(t, template.Sync.DeleteRemovedOnSync)
}

func TestImport_Findings(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		severity Severity
		field    string
	}{
		{
			name:     "missing template id",
			file:     `{"template": {"name": "X", "rules": [{"externalId": "a", "name": "A"}]}}`,
			severity: SeverityError,
			field:    "template.id",
		},
		{
			name: "duplicate rule id",
			file: `{"template": {"id": "t", "name": "X", "rules": [
				{"externalId": "a", "name": "A"},
				{"externalId": "a", "name": "A again"}
			]}}`,
			severity: SeverityConflict,
			field:    "rules[1].externalId",
		},
		{
			name: "unknown group member",
			file: `{"template": {"id": "t", "name": "X",
				"rules": [{"externalId": "a", "name": "A"}],
				"groups": [{"externalId": "g", "name": "G", "enabled": true, "members": ["ghost"]}]}}`,
			severity: SeverityConflict,
			field:    "groups[0].members",
		},
		{
			name: "default member outside the group",
			file: `{"template": {"id": "t", "name": "X",
				"rules": [{"externalId": "a", "name": "A"}],
				"groups": [{"externalId": "g", "name": "G", "enabled": true, "members": ["a"], "defaultMemberId": "b"}]}}`,
			severity: SeverityConflict,
			field:    "groups[0].defaultMemberId",
		},
		{
			name: "score out of range",
			file: `{"template": {"id": "t", "name": "X",
				"rules": [{"externalId": "a", "name": "A", "defaultScore": 10001}]}}`,
			severity: SeverityError,
			field:    "rules[0].defaultScore",
		},
		{
			name: "required and optional contradict",
			file: `{"template": {"id": "t", "name": "X",
				"rules": [{"externalId": "a", "name": "A", "required": true, "optional": true}]}}`,
			severity: SeverityConflict,
			field:    "rules[0]",
		},
		{
			name:     "unknown sync mode",
			file:     `{"template": {"id": "t", "name": "X", "rules": [{"externalId": "a", "name": "A"}], "syncSettings": {"mode": "yolo"}}}`,
			severity: SeverityError,
			field:    "syncSettings.mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Import([]byte(tt.file))
			require.NoError(t, err)
			require.False(t, result.OK(), "want a blocking finding, got: %v", result.Issues)

			found := false
			for _, issue := range result.Issues {
				if issue.Severity == tt.severity && issue.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "issues = %v, want %s on %s", result.Issues, tt.severity, tt.field)
		})
	}
}

func TestImport_Warnings(t *testing.T) {
	file := `{"template": {"id": "t", "name": "X", "rules": []}}`
	result, err := Import([]byte(file))
	require.NoError(t, err)
	assert.True(t, result.OK(), "warnings must not block: %v", result.Issues)
	assert.Len(t, result.Warnings(), 2, "want missing serviceKind and empty rules")
	// An absent sync mode defaults to manual.
	assert.Equal(t, model.SyncModeManual, result.Template.Sync.Mode)
}

func TestImport_Malformed(t *testing.T) {
	_, err := Import([]byte(`{not json`))
	assert.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	original, err := Import([]byte(validFile))
	require.NoError(t, err)
	require.True(t, original.OK())

	data, err := Export(original.Template, Metadata{Author: "ops", Tags: []string{"anime"}})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"), "export should end with a newline")

	reimported, err := Import(data)
	require.NoError(t, err)
	require.True(t, reimported.OK(), "issues: %v", reimported.Issues)

	a, b := original.Template, reimported.Template
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.SourceVersion, b.SourceVersion)
	assert.Len(t, b.Items, len(a.Items))
	assert.Len(t, b.Groups, len(a.Groups))
	require.NotNil(t, b.Rule("rule-c").ScoreOverride)
	assert.Equal(t, 35, *b.Rule("rule-c").ScoreOverride)
	assert.Equal(t, model.SyncModeNotify, b.Sync.Mode)
}
