package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Client defines the local git operations the pipeline needs.
// All methods take the working-tree path.
type Client interface {
	RepoRoot(path string) (string, error)
	CurrentBranch(path string) (string, error)
	Checkout(path, branch string) error
	Pull(path, branch string) error
	CreateBranch(path, name string) error
	CommitAll(path, message string, exclude ...string) (string, error)
	Push(path, branch string) error
	IsDirty(path string, exclude ...string) (bool, error)
	RemoteURL(path string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) Checkout(path, branch string) error {
	_, err := gitCmd(path, "checkout", branch)
	return err
}

// Pull fast-forwards branch from origin.
func (c *RealClient) Pull(path, branch string) error {
	_, err := gitCmd(path, "pull", "--ff-only", "origin", branch)
	return err
}

// CreateBranch creates and checks out name from the current HEAD.
func (c *RealClient) CreateBranch(path, name string) error {
	_, err := gitCmd(path, "checkout", "-b", name)
	return err
}

// pathspec limits a command to the tree at path minus the excluded
// paths, which are relative to path.
func pathspec(exclude []string) []string {
	spec := []string{"--", "."}
	for _, e := range exclude {
		if e != "" {
			spec = append(spec, ":(exclude)"+e)
		}
	}
	return spec
}

// CommitAll stages every change in the tree except the excluded paths and
// commits it, returning the short hash.
func (c *RealClient) CommitAll(path, message string, exclude ...string) (string, error) {
	if _, err := gitCmd(path, append([]string{"add", "-A"}, pathspec(exclude)...)...); err != nil {
		return "", err
	}
	if _, err := gitCmd(path, "commit", "-m", message); err != nil {
		return "", err
	}
	return gitCmd(path, "log", "-1", "--format=%h")
}

func (c *RealClient) Push(path, branch string) error {
	_, err := gitCmd(path, "push", "-u", "origin", branch)
	return err
}

// IsDirty reports uncommitted or untracked changes outside the excluded paths.
func (c *RealClient) IsDirty(path string, exclude ...string) (bool, error) {
	out, err := gitCmd(path, append([]string{"status", "--porcelain"}, pathspec(exclude)...)...)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (c *RealClient) RemoteURL(path string) (string, error) {
	out, err := gitCmd(path, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote is not an error
	}
	return out, nil
}

// ExtractOwnerRepo parses a GitHub remote URL and returns owner/repo.
func ExtractOwnerRepo(remoteURL string) (owner, repo string, err error) {
	// Handle SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.SplitN(remoteURL, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", remoteURL)
		}
		path := strings.TrimSuffix(parts[1], ".git")
		segments := strings.SplitN(path, "/", 2)
		if len(segments) != 2 {
			return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
		}
		return segments[0], segments[1], nil
	}

	// Handle HTTPS: https://github.com/owner/repo.git
	trimmed := strings.TrimSuffix(remoteURL, ".git")
	trimmed = strings.TrimPrefix(trimmed, "https://github.com/")
	trimmed = strings.TrimPrefix(trimmed, "http://github.com/")
	segments := strings.SplitN(trimmed, "/", 2)
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}
	return segments[0], segments[1], nil
}

// DetectRepo returns owner/repo for the origin remote of the tree at path.
func DetectRepo(c Client, path string) (string, error) {
	url, err := c.RemoteURL(path)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("no origin remote in %s", path)
	}
	owner, repo, err := ExtractOwnerRepo(url)
	if err != nil {
		return "", err
	}
	return owner + "/" + repo, nil
}
