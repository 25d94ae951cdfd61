package dedupe

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentpipe/internal/git/gittest"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/store"
)

const bot = "github-actions[bot]"

func TestShouldContinue(t *testing.T) {
	assigned := models.Comment{Body: "🤖 **AI Agent Assigned**\n\nworking on it", User: models.User{Login: bot}}

	tests := []struct {
		name     string
		comments []models.Comment
		want     bool
	}{
		{"no comments", nil, true},
		{"unrelated comments", []models.Comment{{Body: "looks good", User: models.User{Login: "alice"}}}, true},
		{"marker by bot", []models.Comment{assigned}, false},
		{"marker quoted by a human", []models.Comment{{Body: assigned.Body, User: models.User{Login: "alice"}}}, true},
		{"bot comment without marker", []models.Comment{{Body: "❌ failed", User: models.User{Login: bot}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldContinue(tt.comments, bot))
		})
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()
	gh := gittest.NewGitHub()
	g := &Guard{GitHub: gh, Claims: newTestStore(t), BotLogin: bot}

	res, err := g.Check(ctx, "acme/site", 1, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Continue)
	assert.True(t, res.Claimed)

	// A concurrent local trigger loses the claim.
	res, err = g.Check(ctx, "acme/site", 1, "run-2")
	require.NoError(t, err)
	assert.False(t, res.Continue)

	// Releasing lets a re-trigger through.
	require.NoError(t, g.Release(ctx, "acme/site", 1))
	res, err = g.Check(ctx, "acme/site", 1, "run-3")
	require.NoError(t, err)
	assert.True(t, res.Continue)
}

func TestGuard_Check_MarkerPresent(t *testing.T) {
	gh := gittest.NewGitHub()
	gh.Comments[5] = []models.Comment{{Body: AssignedMarker, User: models.User{Login: bot}}}
	g := &Guard{GitHub: gh, BotLogin: bot}

	res, err := g.Check(context.Background(), "acme/site", 5, "run-1")
	require.NoError(t, err)
	assert.False(t, res.Continue)
	assert.Contains(t, res.Reason, "already assigned")
}

func TestGuard_Check_NoClaimer(t *testing.T) {
	g := &Guard{GitHub: gittest.NewGitHub(), BotLogin: bot}
	res, err := g.Check(context.Background(), "acme/site", 2, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Continue)
	assert.False(t, res.Claimed)
	assert.NoError(t, g.Release(context.Background(), "acme/site", 2))
}

func TestGuard_Check_ListError(t *testing.T) {
	gh := gittest.NewGitHub()
	gh.ListCommentsErr = errors.New("rate limited")
	g := &Guard{GitHub: gh, BotLogin: bot}

	_, err := g.Check(context.Background(), "acme/site", 2, "run-1")
	assert.ErrorContains(t, err, "rate limited")
}

func TestIssueKey(t *testing.T) {
	assert.Equal(t, "acme/site#12", IssueKey("acme/site", 12))
}

func TestGuard_Check_RetryAfterFailure(t *testing.T) {
	gh := gittest.NewGitHub()
	gh.Comments[6] = []models.Comment{
		{Body: AssignedMarker, User: models.User{Login: bot}},
		{Body: FailedMarker + "\n\ndetails", User: models.User{Login: bot}},
		{Body: "@ai-agent please retry", User: models.User{Login: "alice"}},
	}
	g := &Guard{GitHub: gh, BotLogin: bot}

	res, err := g.Check(context.Background(), "acme/site", 6, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Continue)

	// A new assignment after the failure blocks again.
	gh.Comments[6] = append(gh.Comments[6], models.Comment{Body: AssignedMarker, User: models.User{Login: bot}})
	res, err = g.Check(context.Background(), "acme/site", 6, "run-2")
	require.NoError(t, err)
	assert.False(t, res.Continue)
}

func TestSinceLastFailure(t *testing.T) {
	human := models.Comment{Body: FailedMarker, User: models.User{Login: "alice"}}
	assert.Len(t, SinceLastFailure([]models.Comment{human}, bot), 1, "only the bot's failure comment counts")
	assert.Empty(t, SinceLastFailure([]models.Comment{{Body: FailedMarker, User: models.User{Login: bot}}}, bot))
}
