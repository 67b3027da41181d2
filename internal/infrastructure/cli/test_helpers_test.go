package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	configPath = ""
	logLevel = "info"
	historyCheck = false
	historyEvents = ""
	watchOnce = false
	runOnce = false
	runListen = ""
	pollRepos = nil
	pollSince = 24 * time.Hour

	var out, errOut bytes.Buffer
	RootCmd.SetArgs(args)
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	RootCmd.SetIn(stdin)
	t.Cleanup(func() {
		RootCmd.SetArgs(nil)
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetIn(nil)
	})

	err := RootCmd.Execute()
	return out.String(), err
}

// writeTestConfig writes a file-backed configuration under a temp dir and
// returns its path and the state directory.
func writeTestConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("integrator_id: bridgekeeper\nstorage:\n  dir: %s\n%s", state, extra)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, state
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

const fixtureOne = `repository: openjdk/jdk
number: 1
title: "8300001: First"
url: https://github.com/openjdk/jdk/pull/1
body: |
  Change.

  ### Issues
   * [JDK-8300001](https://bugs.openjdk.org/browse/JDK-8300001): First
`

const fixtureTwo = `repository: openjdk/jdk
number: 2
title: "8300002: Second"
body: |
  Change.

  ### Issues
   * [JDK-8300002](https://bugs.openjdk.org/browse/JDK-8300002): Second
   * [JDK-8300003](https://bugs.openjdk.org/browse/JDK-8300003): Third
labels: [integrated]
comments:
  - author: bridgekeeper
    body: Pushed as commit 0123456789abcdef0123456789abcdef01234567.
`
