package rule

import "github.com/threatlens/threatlens/pkg/threat"

// builtinRules is the detection baseline that ships with the binary.
// Rule packs loaded from the rules directory are appended after these,
// so a pack can extend the baseline but never silently replace it.
func builtinRules() []Rule {
	return []Rule{
		// --- Prompt injection: instruction override ---
		{
			ID:         "pi-ignore-instructions",
			Category:   "prompt_injection",
			Severity:   threat.SeverityHigh,
			Confidence: 0.85,
			Reason:     "Instruction override language detected (e.g. 'ignore all previous instructions')",
			Patterns: []Pattern{
				{Regex: `(ignore|disregard|forget)\s+(all\s+)?(your\s+|the\s+)?(previous|prior|above|earlier|initial)\s+(instructions?|prompts?|rules?|directives?)`},
				{Regex: `(ignore|disregard|forget)\s+(everything|all)\s+(you\s+(were|have\s+been)\s+told|above)`},
			},
			Metadata: Metadata{Source: "builtin", Description: "Classic instruction-override injection"},
		},
		{
			ID:         "pi-new-instructions",
			Category:   "prompt_injection",
			Severity:   threat.SeverityHigh,
			Confidence: 0.80,
			Reason:     "Attempt to supply replacement instructions to the model",
			Patterns: []Pattern{
				{Regex: `(your\s+)?new\s+(instructions?|rules?|task)\s+(are|is|:)`},
				{Regex: `from\s+now\s+on[,\s]+(you\s+(are|will|must)|respond|act|answer)`},
				{Regex: `\bsystem\s*:\s*(ignore|override|you\s+are)`},
			},
			Metadata: Metadata{Source: "builtin"},
		},
		{
			ID:         "pi-delimiter-escape",
			Category:   "prompt_injection",
			Severity:   threat.SeverityMedium,
			Confidence: 0.70,
			Reason:     "Delimiter or markup sequence used to break out of the prompt frame",
			Patterns: []Pattern{
				{Regex: `</?(system|assistant|instructions?)>`},
				{Regex: `\[/?(INST|SYSTEM)\]`},
				{Regex: `(^|\n)\s*###\s*(system|instruction)`},
			},
			Metadata: Metadata{Source: "builtin"},
		},

		// --- Jailbreaks ---
		{
			ID:         "jb-persona",
			Category:   "jailbreak",
			Severity:   threat.SeverityHigh,
			Confidence: 0.85,
			Reason:     "Known jailbreak persona or unrestricted-mode framing",
			Patterns: []Pattern{
				{Regex: `\b(DAN|do\s+anything\s+now)\b.{0,40}(mode|jailbreak|persona)`},
				{Regex: `(pretend|imagine|act\s+as\s+if)\s+(you\s+)?(are|were|have)\s+(an?\s+)?(ai\s+)?(without|no|free\s+(of|from))\s+(restrictions?|limitations?|guidelines?|filters?|rules?)`},
				{Regex: `you\s+are\s+now\s+(in\s+)?(developer|god|sudo|unrestricted|jailbreak)\s*mode`},
			},
			Metadata: Metadata{Source: "builtin", References: []string{"OWASP-LLM01"}},
		},
		{
			ID:         "jb-disable-safety",
			Category:   "jailbreak",
			Severity:   threat.SeverityCritical,
			Confidence: 0.90,
			Reason:     "Attempt to disable or bypass safety controls",
			Patterns: []Pattern{
				{Regex: `(disable|bypass|turn\s+off|remove|deactivate)\s+(your\s+|the\s+|all\s+)?(safety|security|content)\s*(filters?|controls?|guardrails?|polic(y|ies)|checks?)`},
				{Regex: `(without|no)\s+(any\s+)?(ethical|moral|safety)\s+(constraints?|considerations?|concerns?)`},
			},
			Metadata: Metadata{Source: "builtin", References: []string{"OWASP-LLM01"}},
		},
		{
			ID:         "jb-roleplay-harmful",
			Category:   "jailbreak",
			Severity:   threat.SeverityMedium,
			Confidence: 0.65,
			Reason:     "Roleplay framing commonly used to smuggle harmful requests",
			Patterns: []Pattern{
				{Regex: `(hypothetically|in\s+a\s+fictional\s+(world|story|scenario))[,\s].{0,60}(how\s+(to|would)|explain|describe)\s`},
				{Regex: `for\s+(purely\s+)?(educational|research)\s+purposes\s+only[,\s].{0,60}(how\s+to|steps?)`},
			},
			Metadata: Metadata{Source: "builtin"},
		},

		// --- System prompt leakage ---
		{
			ID:         "spl-reveal-prompt",
			Category:   "system_prompt_leak",
			Severity:   threat.SeverityHigh,
			Confidence: 0.85,
			Reason:     "Attempt to reveal the system prompt or hidden instructions",
			Patterns: []Pattern{
				{Regex: `(reveal|show|print|display|output|repeat|tell\s+me)\s+(me\s+)?(your|the)\s+(system\s+prompt|hidden\s+(instructions?|prompt)|initial\s+(instructions?|prompt))`},
				{Regex: `what\s+(are|were)\s+(your|the)\s+(original|initial|system)\s+(instructions?|prompts?)`},
				{Regex: `(verbatim|word\s+for\s+word).{0,40}(system\s+prompt|instructions)`},
			},
			Metadata: Metadata{Source: "builtin", References: []string{"OWASP-LLM07"}},
		},

		// --- Data exfiltration ---
		{
			ID:         "exfil-send-external",
			Category:   "data_exfiltration",
			Severity:   threat.SeverityHigh,
			Confidence: 0.80,
			Reason:     "Instruction to transmit data to an external destination",
			Patterns: []Pattern{
				{Regex: `(send|post|upload|transmit|forward|exfiltrate)\s+(all\s+|the\s+|this\s+|our\s+)?(conversation|chat|data|history|context|files?|secrets?|credentials?)\s+(to|at)\s+(https?://|[a-z0-9.-]+\.[a-z]{2,})`},
				{Regex: `(embed|encode|include)\s+.{0,40}\s+in\s+(a\s+)?(markdown\s+)?(image|link|url)\s`},
			},
			Metadata: Metadata{Source: "builtin", References: []string{"OWASP-LLM02"}},
		},
		{
			ID:         "exfil-env-dump",
			Category:   "data_exfiltration",
			Severity:   threat.SeverityMedium,
			Confidence: 0.70,
			Reason:     "Request to dump environment variables or configuration secrets",
			Patterns: []Pattern{
				{Regex: `(print|dump|show|list|echo)\s+(all\s+)?(your\s+|the\s+)?(env(ironment)?\s+variables?|\$?ENV\b|api\s+keys?|secrets?|credentials)`},
			},
			Metadata: Metadata{Source: "builtin"},
		},
	}
}
