// cord-bridge is the JSON stdin/stdout interface for external callers
// (editor hooks, agent frameworks). It reads one proposal document from
// stdin, validates it against a schema, runs the pipeline, and writes the
// verdict as JSON to stdout. Errors are JSON too, with a non-zero exit.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/cord/pkg/config"
	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/engine"
)

const proposalSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string", "minLength": 1},
    "action_type": {
      "type": "string",
      "enum": ["command", "file_op", "network", "financial", "communication", "system", "query", "unknown"]
    },
    "target_path": {"type": "string"},
    "network_target": {"type": "string"},
    "grants": {"type": "array", "items": {"type": "string"}},
    "session_intent": {"type": "string"},
    "context": {"type": "object"},
    "tool_name": {"type": "string"},
    "source": {"type": "string", "enum": ["agent", "external", "user", "tool_result"]},
    "raw_input": {"type": "string"},
    "repo_root": {"type": "string"},
    "lock_path": {"type": "string"},
    "log_path": {"type": "string"}
  },
  "additionalProperties": false
}`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr))
}

func writeError(stdout io.Writer, message string) int {
	out, _ := json.Marshal(map[string]any{"error": true, "message": message})
	fmt.Fprintln(stdout, string(out))
	return 1
}

// Run is the entrypoint for testing.
func Run(stdin io.Reader, stdout, stderr io.Writer) int {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("Read error: %v", err))
	}
	if strings.TrimSpace(string(raw)) == "" {
		return writeError(stdout, "Empty input — expected JSON proposal on stdin")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return writeError(stdout, fmt.Sprintf("Invalid JSON: %v", err))
	}

	schema, err := jsonschema.CompileString("proposal.json", proposalSchema)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("Schema error: %v", err))
	}
	if err := schema.Validate(doc); err != nil {
		return writeError(stdout, fmt.Sprintf("Invalid proposal: %v", err))
	}

	var proposal contracts.Proposal
	if err := json.Unmarshal(raw, &proposal); err != nil {
		return writeError(stdout, fmt.Sprintf("Invalid proposal: %v", err))
	}

	// Callers may override the engine paths per request, e.g. an editor
	// hook pointing at the workspace it runs in.
	var overrides struct {
		RepoRoot string `json:"repo_root"`
		LockPath string `json:"lock_path"`
		LogPath  string `json:"log_path"`
	}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return writeError(stdout, fmt.Sprintf("Invalid proposal: %v", err))
	}

	cfg := config.FromEnv()
	if overrides.LockPath != "" {
		cfg.LockPath = overrides.LockPath
	}
	if overrides.LogPath != "" {
		cfg.LogPath = overrides.LogPath
	}
	var opts []engine.Option
	if overrides.RepoRoot != "" {
		opts = append(opts, engine.WithRepoRoot(overrides.RepoRoot))
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("Engine error: %v", err))
	}
	defer eng.Close()

	verdict, err := eng.Evaluate(context.Background(), &proposal)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("Evaluation error: %v", err))
	}

	out, err := verdict.ToJSON()
	if err != nil {
		return writeError(stdout, fmt.Sprintf("Encoding error: %v", err))
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
