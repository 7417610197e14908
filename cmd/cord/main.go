// cord is the command mediator: instead of running commands directly,
// route them through the CORD pipeline. ALLOW and CONTAIN execute,
// CHALLENGE asks the principal, BLOCK refuses.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/cord/pkg/config"
	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/engine"
	"github.com/Mindburn-Labs/cord/pkg/intentlock"
)

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorRed    = "\033[91m"
	ColorGreen  = "\033[92m"
	ColorYellow = "\033[93m"
	ColorOrange = "\033[33m"
)

var decisionColors = map[contracts.Decision]string{
	contracts.DecisionAllow:     ColorGreen,
	contracts.DecisionContain:   ColorYellow,
	contracts.DecisionChallenge: ColorOrange,
	contracts.DecisionBlock:     ColorRed,
}

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 || args[1] == "--help" || args[1] == "-h" {
		printUsage(stdout)
		return 0
	}

	cfg := config.FromEnv()
	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "cord: %v\n", err)
		return 2
	}
	defer eng.Close()

	switch args[1] {
	case "--status":
		return runStatus(cfg, stdout)
	case "--lock":
		return runLock(cfg, stdin, stdout)
	case "--log":
		return runLog(eng, stdout)
	case "--verify":
		return runVerify(eng, stdout)
	default:
		return runEvaluate(eng, cfg, args[1:], stdin, stdout, stderr)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%scord%s — Counter-Operations & Risk Detection\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Route commands through the decision pipeline instead of running them directly:")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  cord git push origin main")
	fmt.Fprintln(w, "  cord rm -rf ~/Downloads/junk")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  cord <command> [args...]   Evaluate, then execute if permitted")
	fmt.Fprintln(w, "  cord --status              Show current intent lock status")
	fmt.Fprintln(w, "  cord --lock                Set a new intent lock interactively")
	fmt.Fprintln(w, "  cord --log                 Show recent audit log entries")
	fmt.Fprintln(w, "  cord --verify              Verify audit chain integrity")
	fmt.Fprintln(w, "  cord --help                Show this help")
	fmt.Fprintln(w, "")
}

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "%sCORD — Counter-Operations & Risk Detection%s\n", ColorDim, ColorReset)
	fmt.Fprintf(w, "%s%s%s\n", ColorDim, strings.Repeat("─", 50), ColorReset)
}

func printVerdict(w io.Writer, v *contracts.Verdict) {
	color := decisionColors[v.Decision]
	fmt.Fprintf(w, "\n  %sDecision:%s %s%s%s\n", ColorBold, ColorReset, color, v.Decision, ColorReset)
	fmt.Fprintf(w, "  %sScore:%s    %v\n", ColorBold, ColorReset, v.Score)

	if len(v.ArticleViolations) > 0 {
		fmt.Fprintf(w, "  %sViolations:%s %s\n", ColorBold, ColorReset, strings.Join(v.ArticleViolations, ", "))
	}
	if len(v.Reasons) > 0 {
		fmt.Fprintf(w, "  %sReasons:%s\n", ColorBold, ColorReset)
		for _, r := range v.Reasons {
			fmt.Fprintf(w, "    %s-%s %s\n", ColorDim, ColorReset, r)
		}
	}
	if len(v.Alternatives) > 0 && v.Decision != contracts.DecisionAllow {
		fmt.Fprintf(w, "  %sAlternatives:%s\n", ColorBold, ColorReset)
		for _, a := range v.Alternatives {
			fmt.Fprintf(w, "    %s>%s %s\n", ColorDim, ColorReset, a)
		}
	}
}

func runStatus(cfg *config.Config, stdout io.Writer) int {
	printBanner(stdout)
	lock := intentlock.Load(cfg.LockPath)
	if lock == nil {
		fmt.Fprintf(stdout, "  %sNo intent lock set.%s\n", ColorRed, ColorReset)
		fmt.Fprintf(stdout, "  Run %scord --lock%s to set one.\n", ColorBold, ColorReset)
		return 0
	}

	fmt.Fprintf(stdout, "  %sIntent lock active%s\n", ColorGreen, ColorReset)
	fmt.Fprintf(stdout, "  User:    %s\n", lock.UserID)
	fmt.Fprintf(stdout, "  Intent:  %s\n", lock.IntentText)
	fmt.Fprintf(stdout, "  Created: %s\n", lock.CreatedAt)
	if len(lock.Scope.AllowPaths) > 0 {
		fmt.Fprintf(stdout, "  Paths:   %s\n", strings.Join(lock.Scope.AllowPaths, ", "))
	}
	if len(lock.Scope.AllowNetworkTargets) > 0 {
		fmt.Fprintf(stdout, "  Network: %s\n", strings.Join(lock.Scope.AllowNetworkTargets, ", "))
	}
	if len(lock.Scope.AllowCommands) > 0 {
		fmt.Fprintf(stdout, "  Commands: %d patterns\n", len(lock.Scope.AllowCommands))
	}
	return 0
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runLock(cfg *config.Config, stdin io.Reader, stdout io.Writer) int {
	printBanner(stdout)
	fmt.Fprintf(stdout, "  %sSet Intent Lock%s\n\n", ColorBold, ColorReset)

	reader := bufio.NewReader(stdin)
	prompt := func(label string) string {
		fmt.Fprintf(stdout, "  %s", label)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return ""
		}
		return strings.TrimSpace(line)
	}

	userID := prompt("User ID: ")
	passphrase := prompt("Passphrase: ")
	intent := prompt("Intent (what are you doing this session?): ")

	fmt.Fprintf(stdout, "\n  %sScope configuration:%s\n", ColorDim, ColorReset)
	pathsRaw := prompt("Allowed paths (comma-separated, or Enter for cwd): ")
	networkRaw := prompt("Allowed network targets (comma-separated, or Enter for none): ")
	commandsRaw := prompt("Allowed command patterns (comma-separated regex, or Enter for any): ")

	allowPaths := splitList(pathsRaw)
	if len(allowPaths) == 0 {
		if wd, err := os.Getwd(); err == nil {
			allowPaths = []string{wd}
		}
	}

	lock, err := intentlock.Set(userID, passphrase, intent, intentlock.Scope{
		AllowPaths:          allowPaths,
		AllowCommands:       splitList(commandsRaw),
		AllowNetworkTargets: splitList(networkRaw),
	}, cfg.LockPath)
	if err != nil {
		fmt.Fprintf(stdout, "\n  %s%v%s\n", ColorRed, err, ColorReset)
		return 1
	}

	fmt.Fprintf(stdout, "\n  %sIntent lock set.%s\n", ColorGreen, ColorReset)
	fmt.Fprintf(stdout, "  Intent: %s\n", lock.IntentText)
	return 0
}

func runLog(eng *engine.Engine, stdout io.Writer) int {
	printBanner(stdout)
	entries := eng.AuditLog().Read()
	if len(entries) == 0 {
		fmt.Fprintf(stdout, "  %sNo audit log entries.%s\n", ColorDim, ColorReset)
		return 0
	}

	recent := entries
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	fmt.Fprintf(stdout, "  %sLast %d of %d entries:%s\n\n", ColorBold, len(recent), len(entries), ColorReset)

	for _, entry := range recent {
		decision, _ := entry["decision"].(string)
		color := decisionColors[contracts.Decision(decision)]
		if decision == "" {
			decision = "?"
		}
		proposal, _ := entry["proposal"].(string)
		if len(proposal) > 60 {
			proposal = proposal[:60]
		}
		timestamp, _ := entry["timestamp"].(string)
		if len(timestamp) > 19 {
			timestamp = timestamp[:19]
		}
		score, _ := entry["score"].(float64)

		fmt.Fprintf(stdout, "  %s%s%s  %s%-9s%s  %5.1f  %s\n",
			ColorDim, timestamp, ColorReset, color, decision, ColorReset, score, proposal)
	}
	return 0
}

func runVerify(eng *engine.Engine, stdout io.Writer) int {
	printBanner(stdout)
	valid, count := eng.AuditLog().Verify()
	if valid {
		fmt.Fprintf(stdout, "  %sChain VALID%s — %d entries, integrity confirmed\n", ColorGreen, ColorReset, count)
		return 0
	}
	fmt.Fprintf(stdout, "  %sChain CORRUPTED%s — tampering detected at entry %d\n", ColorRed, ColorReset, count)
	return 1
}

var urlHost = regexp.MustCompile(`https?://([^\s/]+)`)

func confirmChallenge(stdin io.Reader, stdout io.Writer) bool {
	fmt.Fprintf(stdout, "\n  %sCHALLENGE:%s Proceed anyway? [y/N] ", ColorOrange, ColorReset)
	reader := bufio.NewReader(stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(stdout)
		return false
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(stderr, "cord: %v\n", err)
		return 1
	}
	return 0
}

func runEvaluate(eng *engine.Engine, cfg *config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	commandText := strings.Join(args, " ")
	if commandText == "" {
		fmt.Fprintf(stdout, "  %sNo command provided.%s\n", ColorRed, ColorReset)
		fmt.Fprintln(stdout, "  Usage: cord <command> [args...]")
		return 2
	}

	printBanner(stdout)
	fmt.Fprintf(stdout, "  %sCommand:%s %s\n", ColorBold, ColorReset, commandText)

	proposal := &contracts.Proposal{
		Text:       commandText,
		ActionType: contracts.ActionCommand,
	}
	if m := urlHost.FindStringSubmatch(commandText); m != nil {
		proposal.NetworkTarget = m[1]
	}
	for _, arg := range args[1:] {
		if strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, "~") || strings.HasPrefix(arg, "./") {
			path := arg
			if strings.HasPrefix(path, "~") {
				if home, err := os.UserHomeDir(); err == nil {
					path = home + strings.TrimPrefix(path, "~")
				}
			}
			proposal.TargetPath = path
			break
		}
	}
	if lock := intentlock.Load(cfg.LockPath); lock != nil {
		proposal.SessionIntent = lock.IntentText
	}

	verdict, err := eng.Evaluate(context.Background(), proposal)
	if err != nil {
		fmt.Fprintf(stderr, "cord: %v\n", err)
		return 2
	}
	printVerdict(stdout, verdict)

	switch verdict.Decision {
	case contracts.DecisionAllow:
		fmt.Fprintf(stdout, "\n  %sExecuting...%s\n\n", ColorGreen, ColorReset)
		return execute(args, stdout, stderr)
	case contracts.DecisionContain:
		fmt.Fprintf(stdout, "\n  %sExecuting with monitoring...%s\n\n", ColorYellow, ColorReset)
		return execute(args, stdout, stderr)
	case contracts.DecisionChallenge:
		if confirmChallenge(stdin, stdout) {
			fmt.Fprintf(stdout, "\n  %sPrincipal confirmed. Executing...%s\n\n", ColorOrange, ColorReset)
			return execute(args, stdout, stderr)
		}
		fmt.Fprintf(stdout, "\n  %sAction cancelled by Principal.%s\n", ColorDim, ColorReset)
		return 1
	default: // BLOCK
		fmt.Fprintf(stdout, "\n  %sBLOCKED — this action violates policy.%s\n", ColorRed, ColorReset)
		fmt.Fprintf(stdout, "  %sThe command was not executed.%s\n", ColorDim, ColorReset)
		return 1
	}
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}
