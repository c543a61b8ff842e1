package engine

import (
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/threatlens/threatlens/pkg/threat"
)

// PayloadDetector looks for shell commands embedded in prompt text —
// the payload an injected instruction typically asks a tool-using agent
// to run. Candidate snippets (code fences, backticks, $(...) bodies)
// are parsed as real shell with mvdan.cc/sh, so flag reordering or
// quoting tricks don't evade the check the way they would a regex.
type PayloadDetector struct {
	parser *syntax.Parser
}

// NewPayloadDetector creates the payload detector.
func NewPayloadDetector() *PayloadDetector {
	return &PayloadDetector{parser: syntax.NewParser()}
}

func (d *PayloadDetector) Name() string { return "payload" }

var (
	fenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\n(.*?)```")
	backtickRe = regexp.MustCompile("`([^`\n]{4,})`")
	subshellRe = regexp.MustCompile(`\$\(([^)]{4,})\)`)
	dollarLine = regexp.MustCompile(`(?m)^\s*\$\s+(.+)$`)

	// Plain-text fallback for payloads outside any code markup.
	inlineDangerRe = regexp.MustCompile(`(?i)((curl|wget)\s+\S+\s*\|\s*(ba|z)?sh\b|rm\s+-[a-z]*r[a-z]*f[a-z]*\s+[/~]|dd\s+if=\S+\s+of=/dev/)`)
)

func (d *PayloadDetector) Detect(ctx *TextContext) []threat.Detection {
	var detections []threat.Detection

	for _, snip := range extractSnippets(ctx.Canonical) {
		detections = append(detections, d.inspectSnippet(snip)...)
	}

	if len(detections) == 0 {
		if m := inlineDangerRe.FindString(ctx.Canonical); m != "" {
			detections = append(detections, threat.Detection{
				RuleID:     "payload-inline-danger",
				Category:   "malicious_payload",
				Severity:   threat.SeverityHigh,
				Confidence: 0.75,
				Detector:   d.Name(),
				Snippet:    snippet(m),
				Reason:     "dangerous shell command embedded in prompt text",
			})
		}
	}

	return dedupeByRule(detections)
}

// extractSnippets pulls shell-candidate fragments out of prompt text.
func extractSnippets(text string) []string {
	var snippets []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		snippets = append(snippets, m[1])
	}
	for _, m := range backtickRe.FindAllStringSubmatch(text, -1) {
		snippets = append(snippets, m[1])
	}
	for _, m := range subshellRe.FindAllStringSubmatch(text, -1) {
		snippets = append(snippets, m[1])
	}
	for _, m := range dollarLine.FindAllStringSubmatch(text, -1) {
		snippets = append(snippets, m[1])
	}
	return snippets
}

// inspectSnippet parses one candidate as shell and inspects its calls
// and pipelines. Snippets that aren't valid shell are skipped silently;
// most backtick content is prose, not payload.
func (d *PayloadDetector) inspectSnippet(src string) []threat.Detection {
	file, err := d.parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return nil
	}

	var detections []threat.Detection

	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CallExpr:
			if det, ok := classifyCall(n, src); ok {
				detections = append(detections, det)
			}
		case *syntax.BinaryCmd:
			if n.Op == syntax.Pipe {
				if det, ok := classifyPipe(n, src); ok {
					detections = append(detections, det)
				}
			}
		}
		return true
	})

	return detections
}

// classifyCall flags a single command invocation.
func classifyCall(call *syntax.CallExpr, src string) (threat.Detection, bool) {
	exe, args := callWords(call)
	if exe == "" {
		return threat.Detection{}, false
	}

	switch exe {
	case "rm":
		if hasRecursiveForce(args) {
			return payloadDetection("payload-destructive-rm", threat.SeverityCritical, 0.90,
				"recursive force-delete command embedded in prompt", src), true
		}
	case "dd", "mkfs", "shred":
		for _, a := range args {
			if strings.HasPrefix(a, "of=/dev/") || strings.HasPrefix(a, "/dev/") {
				return payloadDetection("payload-destructive-disk", threat.SeverityCritical, 0.90,
					"disk-destructive command embedded in prompt", src), true
			}
		}
	case "cat", "scp", "cp", "base64":
		for _, a := range args {
			if strings.Contains(a, ".ssh/") || strings.Contains(a, ".aws/") || strings.Contains(a, ".gnupg/") {
				return payloadDetection("payload-credential-read", threat.SeverityHigh, 0.85,
					"command reads credential files (~/.ssh, ~/.aws)", src), true
			}
		}
	case "nc", "ncat", "netcat":
		return payloadDetection("payload-netcat", threat.SeverityHigh, 0.75,
			"raw network tool invocation embedded in prompt", src), true
	case "eval", "exec":
		return payloadDetection("payload-dynamic-exec", threat.SeverityMedium, 0.65,
			"dynamic code execution embedded in prompt", src), true
	}

	return threat.Detection{}, false
}

// classifyPipe flags download-and-execute pipelines (curl ... | bash).
func classifyPipe(cmd *syntax.BinaryCmd, src string) (threat.Detection, bool) {
	left := firstExecutable(cmd.X)
	right := firstExecutable(cmd.Y)

	if (left == "curl" || left == "wget") && isShellInterpreter(right) {
		return payloadDetection("payload-pipe-to-shell", threat.SeverityCritical, 0.90,
			"download piped directly into a shell interpreter", src), true
	}
	if isShellInterpreter(right) && left == "echo" {
		return payloadDetection("payload-echo-to-shell", threat.SeverityHigh, 0.75,
			"inline script piped into a shell interpreter", src), true
	}
	return threat.Detection{}, false
}

func payloadDetection(ruleID string, sev threat.Severity, conf float64, reason, src string) threat.Detection {
	return threat.Detection{
		RuleID:     ruleID,
		Category:   "malicious_payload",
		Severity:   sev,
		Confidence: conf,
		Detector:   "payload",
		Snippet:    snippet(strings.TrimSpace(src)),
		Reason:     reason,
	}
}

// callWords extracts the executable and literal arguments of a call.
func callWords(call *syntax.CallExpr) (string, []string) {
	if len(call.Args) == 0 {
		return "", nil
	}
	exe := wordText(call.Args[0])
	args := make([]string, 0, len(call.Args)-1)
	for _, w := range call.Args[1:] {
		args = append(args, wordText(w))
	}
	return exe, args
}

// wordText flattens a shell word into its literal text, unwrapping
// plain and quoted parts. Expansions come back empty.
func wordText(w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}

// firstExecutable returns the executable name of a statement when it is
// a plain call, "" otherwise.
func firstExecutable(stmt *syntax.Stmt) string {
	if stmt == nil {
		return ""
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(call.Args) == 0 {
		return ""
	}
	return wordText(call.Args[0])
}

func isShellInterpreter(name string) bool {
	switch name {
	case "sh", "bash", "zsh", "dash", "ksh":
		return true
	}
	return false
}

// hasRecursiveForce reports whether rm args include both -r and -f in
// any spelling or order.
func hasRecursiveForce(args []string) bool {
	recursive, force := false, false
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			continue
		}
		if strings.HasPrefix(a, "--") {
			if a == "--recursive" {
				recursive = true
			}
			if a == "--force" {
				force = true
			}
			continue
		}
		if strings.ContainsAny(a, "rR") {
			recursive = true
		}
		if strings.Contains(a, "f") {
			force = true
		}
	}
	return recursive && force
}

// dedupeByRule keeps the first detection per rule ID. One snippet can
// trip the same classification several times.
func dedupeByRule(detections []threat.Detection) []threat.Detection {
	if len(detections) < 2 {
		return detections
	}
	seen := make(map[string]bool, len(detections))
	out := detections[:0]
	for _, d := range detections {
		if seen[d.RuleID] {
			continue
		}
		seen[d.RuleID] = true
		out = append(out, d)
	}
	return out
}
