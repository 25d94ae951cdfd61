package interpret

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/joescharf/agentpipe/internal/models"
)

// PreviewLimit caps how much of the raw reply the fallback document quotes.
const PreviewLimit = 500

const defaultFallbackAnalysis = "The AI response could not be parsed; a fallback implementation was generated for manual follow-up."

var analysisRe = regexp.MustCompile(`"analysis"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// ExtractAnalysis pulls a best-effort "analysis" value out of unparseable text.
func ExtractAnalysis(raw string) string {
	m := analysisRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(looseUnescape(m[1]))
}

// Fallback synthesizes a reviewable plan when the reply cannot be recovered.
// It always returns at least one file.
func Fallback(raw string, task *models.TaskDescriptor, cause error) *models.ImplementationPlan {
	if task == nil {
		task = &models.TaskDescriptor{Title: "Untitled task"}
	}
	analysis := ExtractAnalysis(raw)
	if analysis == "" {
		analysis = defaultFallbackAnalysis
	}

	plan := &models.ImplementationPlan{
		Analysis:     analysis,
		Instructions: "The generated response was not valid JSON. Review the placeholder files and complete the implementation manually.",
	}

	text := strings.ToLower(task.Title + " " + task.Description)
	name := componentName(task.Title)
	if strings.Contains(text, "component") {
		plan.Files = append(plan.Files, models.FileChange{
			Path:        "src/components/" + name + ".tsx",
			Action:      models.FileActionCreate,
			Content:     componentTemplate(name, task),
			Explanation: "Placeholder component generated because the AI response could not be parsed",
		})
	}
	if strings.Contains(text, "page") {
		plan.Files = append(plan.Files, models.FileChange{
			Path:        "src/app/" + slug(task.Title) + "/page.tsx",
			Action:      models.FileActionCreate,
			Content:     pageTemplate(name, task),
			Explanation: "Placeholder page generated because the AI response could not be parsed",
		})
	}
	if len(plan.Files) == 0 {
		plan.Files = append(plan.Files, models.FileChange{
			Path:        fmt.Sprintf("docs/ai-agent/issue-%d.md", task.IssueNumber),
			Action:      models.FileActionCreate,
			Content:     failureDoc(raw, task, cause),
			Explanation: "Records the unparseable AI response for manual follow-up",
		})
	}
	return plan
}

// Preview returns at most PreviewLimit runes of s.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLimit {
		return s
	}
	return string(r[:PreviewLimit]) + "..."
}

var stopWords = map[string]bool{
	"ai": true, "add": true, "create": true, "new": true, "a": true, "an": true, "the": true,
	"component": true, "page": true, "implement": true, "build": true,
}

func titleWords(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var words []string
	for _, f := range fields {
		if !stopWords[f] {
			words = append(words, f)
		}
	}
	return words
}

func componentName(title string) string {
	var b strings.Builder
	for _, w := range titleWords(title) {
		r := []rune(w)
		b.WriteString(string(unicode.ToUpper(r[0])) + string(r[1:]))
	}
	name := b.String()
	if name == "" || unicode.IsDigit([]rune(name)[0]) {
		name = "Generated" + name
	}
	return name
}

func slug(title string) string {
	s := strings.Join(titleWords(title), "-")
	if s == "" {
		return "generated"
	}
	return s
}

// commentLines renders text as consecutive // lines under a label.
func commentLines(label, text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var b strings.Builder
	for i, l := range lines {
		if i == 0 {
			fmt.Fprintf(&b, "// %s: %s\n", label, strings.TrimRight(l, "\r"))
			continue
		}
		fmt.Fprintf(&b, "// %s\n", strings.TrimRight(l, "\r"))
	}
	return b.String()
}

// jsxText renders s as a JSX string expression so braces and tags stay text.
func jsxText(s string) string {
	return "{" + marshalString(strings.TrimSpace(s)) + "}"
}

func componentTemplate(name string, task *models.TaskDescriptor) string {
	return fmt.Sprintf(`%s%s
export default function %s() {
  return (
    <div className="p-4">
      <h2 className="text-xl font-semibold">%s</h2>
      <p>This component is a placeholder.</p>
    </div>
  );
}
`, commentLines(fmt.Sprintf("Placeholder generated for issue #%d", task.IssueNumber), task.Title),
		commentLines("Task", task.Description), name, name)
}

func pageTemplate(name string, task *models.TaskDescriptor) string {
	return fmt.Sprintf(`%s
export default function %sPage() {
  return (
    <main className="container mx-auto px-4 py-8">
      <h1 className="text-3xl font-bold">%s</h1>
      <p className="mt-4">%s</p>
    </main>
  );
}
`, commentLines(fmt.Sprintf("Placeholder generated for issue #%d", task.IssueNumber), task.Title),
		name, jsxText(task.Title), jsxText(task.Description))
}

func failureDoc(raw string, task *models.TaskDescriptor, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# AI Agent Response for Issue #%d\n\n", task.IssueNumber)
	fmt.Fprintf(&b, "**Title:** %s\n\n", task.Title)
	fmt.Fprintf(&b, "**Description:** %s\n\n", task.Description)
	b.WriteString("## Status\n\nThe AI response could not be parsed into an implementation plan.\n")
	if cause != nil {
		fmt.Fprintf(&b, "\n**Parse error:** %s\n", cause)
	}
	b.WriteString("\n## Raw Response Preview\n\n```\n")
	b.WriteString(Preview(raw))
	b.WriteString("\n```\n\n## Next Steps\n\n1. Review the task requirements\n2. Implement the change manually or re-trigger the agent\n")
	return b.String()
}
