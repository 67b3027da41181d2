package forge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPullRequest reads a single pull request description from a YAML file.
func LoadPullRequest(path string) (PullRequest, error) {
	// #nosec G304 -- path comes from the operator's fixture directory
	data, err := os.ReadFile(path)
	if err != nil {
		return PullRequest{}, fmt.Errorf("read pull request file: %w", err)
	}

	var pr PullRequest
	if err := yaml.Unmarshal(data, &pr); err != nil {
		return PullRequest{}, fmt.Errorf("unmarshal pull request %s: %w", path, err)
	}
	if err := pr.Validate(); err != nil {
		return PullRequest{}, fmt.Errorf("%s: %w", path, err)
	}
	return pr, nil
}

// LoadPullRequests reads every *.yaml and *.yml file directly under dir.
// Results are ordered by ID.
func LoadPullRequests(dir string) ([]PullRequest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture directory: %w", err)
	}

	var prs []PullRequest
	for _, e := range entries {
		if e.IsDir() || !IsFixtureFile(e.Name()) {
			continue
		}
		pr, err := LoadPullRequest(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}

	sort.Slice(prs, func(i, j int) bool { return prs[i].ID() < prs[j].ID() })
	return prs, nil
}

// IsFixtureFile reports whether name looks like a pull request fixture.
func IsFixtureFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
