package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/store"
)

func historyEnv(t *testing.T) (store.Store, *bytes.Buffer) {
	t.Helper()
	dir := testEnv(t)

	s, err := store.NewSQLiteStore(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, &models.Run{Repo: "acme/site", IssueNumber: 42, Status: models.RunStatusCompleted, Stage: "notify", PRNumber: 100}))
	require.NoError(t, s.CreateRun(ctx, &models.Run{Repo: "acme/site", IssueNumber: 43, Status: models.RunStatusFailed, Stage: "extract", Reason: "no description"}))
	require.NoError(t, s.CreateEvaluation(ctx, &models.EvaluationRecord{Repo: "acme/site", PRNumber: 100, TotalScore: 92, Approved: true, Confidence: 92}))

	var buf bytes.Buffer
	ui.Out = &buf

	historyType, historyFormat, historyStatus = "runs", "table", ""
	historyIssue, historyPR, historyLimit = 0, 0, 20
	t.Cleanup(func() { historyType, historyFormat = "runs", "table" })
	return s, &buf
}

func TestHistory_RunsJSON(t *testing.T) {
	s, buf := historyEnv(t)
	historyFormat = "json"
	historyStatus = "failed"

	require.NoError(t, historyRun(context.Background(), s))

	var runs []*models.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 43, runs[0].IssueNumber)
	assert.Equal(t, "no description", runs[0].Reason)
}

func TestHistory_RunsCSV(t *testing.T) {
	s, buf := historyEnv(t)
	historyFormat = "csv"

	require.NoError(t, historyRun(context.Background(), s))

	rows, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Issue", rows[0][2])
}

func TestHistory_RunsMarkdownAndTable(t *testing.T) {
	s, buf := historyEnv(t)

	historyFormat = "markdown"
	require.NoError(t, historyRun(context.Background(), s))
	assert.Contains(t, buf.String(), "# Pipeline Runs")
	assert.Contains(t, buf.String(), "| #43 | failed | extract | no description |")

	buf.Reset()
	historyFormat = "table"
	require.NoError(t, historyRun(context.Background(), s))
	assert.Contains(t, buf.String(), "#42")
}

func TestHistory_RepoFilter(t *testing.T) {
	s, buf := historyEnv(t)
	historyFormat = "json"
	viper.Set("github.repo", "acme/other")

	require.NoError(t, historyRun(context.Background(), s))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestHistory_Evaluations(t *testing.T) {
	s, buf := historyEnv(t)
	historyType = "evaluations"
	historyFormat = "markdown"

	require.NoError(t, historyRun(context.Background(), s))
	assert.Contains(t, buf.String(), "| #100 | 92 | true | 92% |")
}

func TestHistory_Errors(t *testing.T) {
	s, _ := historyEnv(t)

	historyType = "sessions"
	assert.ErrorContains(t, historyRun(context.Background(), s), "unknown history type")

	historyType = "runs"
	historyFormat = "xml"
	assert.ErrorContains(t, historyRun(context.Background(), s), "unknown format")
}

func TestLoadEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"opened","issue":{"number":5,"title":"[AI] Add footer"},"repository":{"full_name":"acme/site"}}`), 0644))

	ev, err := loadEvent(path)
	require.NoError(t, err)
	assert.Equal(t, "opened", ev.Action)
	assert.Equal(t, 5, ev.Issue.Number)
	assert.Equal(t, "acme/site", ev.Repo())

	t.Setenv("GITHUB_EVENT_PATH", path)
	ev, err = loadEvent("")
	require.NoError(t, err)
	assert.Equal(t, 5, ev.Issue.Number)

	t.Setenv("GITHUB_EVENT_PATH", "")
	_, err = loadEvent("")
	assert.ErrorContains(t, err, "no event payload")

	require.NoError(t, os.WriteFile(path, []byte(`{nope`), 0644))
	_, err = loadEvent(path)
	assert.ErrorContains(t, err, "parse event")
}
