package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/project"
)

func testTask() *models.TaskDescriptor {
	return &models.TaskDescriptor{
		IssueNumber: 3,
		Title:       "Add contact page",
		Description: "Create a contact form page",
		TaskType:    "Feature",
		Priority:    "High",
	}
}

func TestBuildImplementationPrompt(t *testing.T) {
	snap := &project.Snapshot{
		Files:    []string{"src/app/page.tsx", "package.json"},
		Manifest: &project.PackageManifest{Dependencies: map[string]string{"react": "19", "next": "15"}},
	}

	t.Run("task fields and platform assumptions", func(t *testing.T) {
		p := BuildImplementationPrompt(testTask(), snap)

		assert.Contains(t, p, "Next.js 15 with App Router")
		assert.Contains(t, p, "Tailwind CSS")
		assert.Contains(t, p, "- Title: Add contact page")
		assert.Contains(t, p, "- Type: Feature")
		assert.Contains(t, p, "- Priority: High")
		assert.Contains(t, p, "- Description: Create a contact form page")
		assert.Contains(t, p, "- Current files: src/app/page.tsx, package.json")
		assert.Contains(t, p, "- Dependencies: next, react")
		assert.NotContains(t, p, "- Requirements:")
	})

	t.Run("go module line", func(t *testing.T) {
		assert.NotContains(t, BuildImplementationPrompt(testTask(), snap), "- Go module:")
		goSnap := &project.Snapshot{GoModule: &project.GoModule{Path: "example.com/svc", GoVersion: "1.24"}}
		assert.Contains(t, BuildImplementationPrompt(testTask(), goSnap), "- Go module: example.com/svc (go 1.24)")
	})

	t.Run("requirements line only when present", func(t *testing.T) {
		task := testTask()
		req := "Must validate email"
		task.Requirements = &req
		p := BuildImplementationPrompt(task, snap)
		assert.Contains(t, p, "- Requirements: Must validate email")
	})

	t.Run("json shape and escaping rules", func(t *testing.T) {
		p := BuildImplementationPrompt(testTask(), nil)
		for _, want := range []string{`"analysis"`, `"files"`, `"path"`, `"action"`, `"content"`, `"explanation"`, `"instructions"`} {
			assert.Contains(t, p, want)
		}
		assert.Contains(t, p, `Escape newlines as \n`)
		assert.Contains(t, p, `Escape quotes as \"`)
		assert.Contains(t, p, "trailing commas")
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, BuildImplementationPrompt(testTask(), snap), BuildImplementationPrompt(testTask(), snap))
	})

	t.Run("caps listed files", func(t *testing.T) {
		big := &project.Snapshot{}
		for i := 0; i < 80; i++ {
			big.Files = append(big.Files, fmt.Sprintf("f%02d.ts", i))
		}
		p := BuildImplementationPrompt(testTask(), big)
		assert.Contains(t, p, "f49.ts")
		assert.NotContains(t, p, "f50.ts")
	})
}

func TestMockGenerator(t *testing.T) {
	m := &MockGenerator{}
	out, err := m.Generate(context.Background(), "prompt one")
	require.NoError(t, err)
	assert.Equal(t, MockReply, out)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))

	m.Reply = "custom"
	out, err = m.Generate(context.Background(), "prompt two")
	require.NoError(t, err)
	assert.Equal(t, "custom", out)
	assert.Equal(t, []string{"prompt one", "prompt two"}, m.Prompts())
	assert.Equal(t, "mock", m.Name())

	m.Err = errors.New("boom")
	_, err = m.Generate(context.Background(), "x")
	assert.EqualError(t, err, "boom")
}

func TestNewGenerators_NoCredential(t *testing.T) {
	_, err := NewAnthropicGenerator("", "")
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewGeminiGenerator(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestNewAnthropicGenerator_DefaultModel(t *testing.T) {
	g, err := NewAnthropicGenerator("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, "anthropic:"+DefaultAnthropicModel, g.Name())
}
