package llm

import (
	"strings"

	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/project"
)

// PromptFileLimit is how many snapshot paths the prompt lists.
const PromptFileLimit = 50

const promptHeader = `You are an expert Next.js developer working on a portfolio website.

**Project Information:**
- Framework: Next.js 15 with App Router
- Language: TypeScript
- Styling: Tailwind CSS
`

const promptInstructions = `
**Instructions:**
1. Analyze the task and determine what files need to be created/modified
2. Generate complete, production-ready code
3. Follow Next.js 15 best practices and TypeScript standards
4. Ensure responsive design with Tailwind CSS
5. Make the implementation functional and complete

**Response Format:**
Respond with VALID JSON ONLY using this structure:

{
  "analysis": "Brief explanation of the implementation approach",
  "files": [
    {
      "path": "relative/path/to/file.tsx",
      "action": "create",
      "content": "COMPLETE_FILE_CONTENT_HERE",
      "explanation": "Purpose and functionality of this file"
    }
  ],
  "instructions": "Setup or deployment instructions if needed"
}

**Critical Requirements:**
- Use double quotes for all JSON strings
- Escape newlines as \n in content
- Escape quotes as \" in content
- Escape backslashes as \\ in content
- Do not use trailing commas
- Do not write any text before or after the JSON object
- Use relative paths inside the project; "action" is "create" or "modify"
- Generate real, working code (no placeholders)
- Include proper TypeScript types
- Use modern React patterns (hooks, functional components)

Generate actual implementation code that works immediately.`

// BuildImplementationPrompt renders the instruction document for task.
// The output depends only on its inputs.
func BuildImplementationPrompt(task *models.TaskDescriptor, snap *project.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)

	var files []string
	if snap != nil {
		files = snap.Files
		if len(files) > PromptFileLimit {
			files = files[:PromptFileLimit]
		}
	}
	sb.WriteString("- Current files: ")
	sb.WriteString(strings.Join(files, ", "))
	sb.WriteString("\n")
	if snap != nil && snap.Manifest != nil {
		if deps := snap.Manifest.DependencyNames(); len(deps) > 0 {
			sb.WriteString("- Dependencies: ")
			sb.WriteString(strings.Join(deps, ", "))
			sb.WriteString("\n")
		}
	}
	if snap != nil && snap.GoModule != nil {
		sb.WriteString("- Go module: " + snap.GoModule.String() + "\n")
	}

	sb.WriteString("\n**Task Details:**\n")
	sb.WriteString("- Title: " + task.Title + "\n")
	sb.WriteString("- Type: " + task.TaskType + "\n")
	sb.WriteString("- Priority: " + task.Priority + "\n")
	sb.WriteString("- Description: " + task.Description + "\n")
	if task.Requirements != nil && *task.Requirements != "" {
		sb.WriteString("- Requirements: " + *task.Requirements + "\n")
	}

	sb.WriteString(promptInstructions)
	return sb.String()
}
