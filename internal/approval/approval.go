// Package approval asks the operator whether to proceed past a warn
// verdict when the CLI runs in gate mode.
package approval

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Result is the operator's decision.
type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes the verdict to show before asking.
type Prompt struct {
	Excerpt     string
	RiskScore   int
	ThreatTypes []string
	Reasons     []string
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask shows the verdict and reads a y/N answer. Non-interactive
// sessions auto-deny: a pipeline has no one to ask.
func Ask(p Prompt) Result {
	if !IsInteractive() {
		return Result{Approved: false, UserAction: "auto_deny_non_interactive"}
	}

	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "⚠ flagged with risk score %d", p.RiskScore)
	if len(p.ThreatTypes) > 0 {
		fmt.Fprintf(os.Stderr, " (%s)", strings.Join(p.ThreatTypes, ", "))
	}
	fmt.Fprintln(os.Stderr, "")
	if p.Excerpt != "" {
		fmt.Fprintf(os.Stderr, "  text: %s\n", p.Excerpt)
	}
	for _, reason := range p.Reasons {
		fmt.Fprintf(os.Stderr, "  - %s\n", reason)
	}
	fmt.Fprint(os.Stderr, "\nProceed anyway? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return Result{Approved: false, UserAction: "read_error"}
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "y" || answer == "yes" {
		return Result{Approved: true, UserAction: "approved"}
	}
	return Result{Approved: false, UserAction: "denied"}
}
