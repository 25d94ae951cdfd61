package apply

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/joescharf/agentpipe/internal/models"
)

// SummaryFile is written at the work root after a successful apply.
const SummaryFile = "AI_IMPLEMENTATION.md"

// ErrUnsafePath is returned for absolute paths and paths that leave the work root.
var ErrUnsafePath = errors.New("unsafe path")

// FileError names the plan file that failed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Applier writes plans to a filesystem rooted at Root.
type Applier struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// New returns an Applier. A nil fs means the OS filesystem.
func New(fs afero.Fs, root string) *Applier {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Applier{fs: fs, root: root, now: time.Now}
}

// ValidatePath cleans a plan path and rejects anything that could escape the root.
func ValidatePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, p)
	}
	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q escapes the work tree", ErrUnsafePath, p)
	}
	for _, seg := range strings.Split(clean, "/") {
		if strings.EqualFold(seg, ".git") {
			return "", fmt.Errorf("%w: %q writes into .git", ErrUnsafePath, p)
		}
	}
	if strings.EqualFold(clean, SummaryFile) {
		return "", fmt.Errorf("%w: %q is reserved for the implementation summary", ErrUnsafePath, p)
	}
	return clean, nil
}

// Apply writes every file in order, then the summary document. The first
// failure aborts; files already written stay on disk.
func (a *Applier) Apply(plan *models.ImplementationPlan, task *models.TaskDescriptor) (*models.ChangeRecord, error) {
	if plan == nil || len(plan.Files) == 0 {
		return nil, errors.New("apply: plan has no files")
	}

	// Reject the whole plan before touching the disk.
	cleaned := make([]string, len(plan.Files))
	for i, f := range plan.Files {
		p, err := ValidatePath(f.Path)
		if err != nil {
			return nil, &FileError{Path: f.Path, Err: err}
		}
		cleaned[i] = p
	}

	applied := make([]models.AppliedFile, 0, len(plan.Files))
	for i, f := range plan.Files {
		full := filepath.Join(a.root, filepath.FromSlash(cleaned[i]))
		if err := a.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, &FileError{Path: f.Path, Err: err}
		}
		if err := afero.WriteFile(a.fs, full, []byte(f.Content), 0644); err != nil {
			return nil, &FileError{Path: f.Path, Err: err}
		}
		applied = append(applied, models.AppliedFile{
			Path:        cleaned[i],
			Action:      f.Action,
			Explanation: f.Explanation,
		})
	}

	instructions := plan.Instructions
	if instructions == "" {
		instructions = "No additional setup required"
	}
	rec := &models.ChangeRecord{
		AppliedFiles: applied,
		Analysis:     plan.Analysis,
		Instructions: instructions,
		TaskData:     task,
		Timestamp:    a.now().UTC(),
		SummaryPath:  SummaryFile,
	}

	summary := filepath.Join(a.root, SummaryFile)
	if err := afero.WriteFile(a.fs, summary, []byte(SummaryMarkdown(rec)), 0644); err != nil {
		return nil, &FileError{Path: SummaryFile, Err: err}
	}
	return rec, nil
}

// SummaryMarkdown renders the human-readable implementation summary.
func SummaryMarkdown(rec *models.ChangeRecord) string {
	task := rec.TaskData
	if task == nil {
		task = &models.TaskDescriptor{}
	}

	var b strings.Builder
	b.WriteString("# AI Implementation Summary\n\n")
	b.WriteString("## Task Information\n")
	fmt.Fprintf(&b, "- **Issue:** #%d\n", task.IssueNumber)
	fmt.Fprintf(&b, "- **Title:** %s\n", task.Title)
	fmt.Fprintf(&b, "- **Type:** %s\n", task.TaskType)
	fmt.Fprintf(&b, "- **Priority:** %s\n", task.Priority)
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", rec.Timestamp.Format(time.RFC3339))

	b.WriteString("## Implementation Analysis\n")
	b.WriteString(rec.Analysis + "\n\n")

	fmt.Fprintf(&b, "## Files Modified (%d)\n", rec.FilesModified())
	for _, f := range rec.AppliedFiles {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", f.Path, f.Action, f.Explanation)
	}

	b.WriteString("\n## Setup Instructions\n")
	b.WriteString(rec.Instructions + "\n\n")

	b.WriteString("## Next Steps\n")
	b.WriteString("1. Review the generated code for quality and correctness\n")
	b.WriteString("2. Test the implementation locally\n")
	b.WriteString("3. Deploy by merging the pull request\n\n")
	b.WriteString("---\n*Generated by the AI agent pipeline*\n")
	return b.String()
}
