// Package mlrunner invokes external analysis scripts and tracks their
// runs as asynchronous jobs.
package mlrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// scriptNameExpr rejects anything that could escape the scripts dir.
var scriptNameExpr = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Runner is the interface for invoking an analysis script.
type Runner interface {
	RunScript(ctx context.Context, script string, data any, flags map[string]string) (json.RawMessage, error)
}

// ScriptRunner shells out to Python scripts. The contract: input data
// lands in a temp JSON file passed as --data, the script writes its
// result JSON to --output and prints that path as its last stdout line.
type ScriptRunner struct {
	pythonBin  string
	scriptsDir string
	timeout    time.Duration
}

// NewScriptRunner creates a ScriptRunner that invokes pythonBin on
// scripts under scriptsDir, each run bounded by timeout.
func NewScriptRunner(pythonBin, scriptsDir string, timeout time.Duration) *ScriptRunner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ScriptRunner{
		pythonBin:  pythonBin,
		scriptsDir: scriptsDir,
		timeout:    timeout,
	}
}

// RunScript runs <scriptsDir>/<script>.py against data and returns the
// result JSON the script produced.
func (r *ScriptRunner) RunScript(ctx context.Context, script string, data any, flags map[string]string) (json.RawMessage, error) {
	if !scriptNameExpr.MatchString(script) {
		return nil, fmt.Errorf("mlrunner: invalid script name %q", script)
	}
	scriptPath := filepath.Join(r.scriptsDir, script+".py")
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("mlrunner: script %s: %w", script, err)
	}

	workDir, err := os.MkdirTemp("", "datastack-ml-*")
	if err != nil {
		return nil, fmt.Errorf("mlrunner: workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dataPath := filepath.Join(workDir, "input.json")
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("mlrunner: encode input: %w", err)
	}
	if err := os.WriteFile(dataPath, payload, 0o600); err != nil {
		return nil, fmt.Errorf("mlrunner: write input: %w", err)
	}

	args := []string{scriptPath, "--data", dataPath, "--output", filepath.Join(workDir, "result.json")}
	args = appendFlags(args, flags)

	stdout, err := r.run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("mlrunner: %s: %w", script, err)
	}

	resultPath := lastLine(stdout)
	if resultPath == "" {
		return nil, fmt.Errorf("mlrunner: %s: no result path on stdout", script)
	}
	result, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("mlrunner: %s: read result: %w", script, err)
	}
	if !json.Valid(result) {
		return nil, fmt.Errorf("mlrunner: %s: result is not valid JSON", script)
	}
	return json.RawMessage(result), nil
}

func (r *ScriptRunner) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.pythonBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w (stderr: %s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func appendFlags(args []string, flags map[string]string) []string {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+k, flags[k])
	}
	return args
}

// lastLine returns the final non-empty line of the script's stdout,
// which by contract is the result file path.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
