package safety

import (
	"fmt"
	"regexp"
	"strings"

	"aura/internal/logging"
	"aura/internal/types"
)

// neverAllowed are hard invariants. No confirmation, shadow mode or applied
// mutation can bypass them.
var neverAllowed = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*(/|~/?\s*$|\$HOME\b)`),
	regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f|\brm\s+-[a-z]*f[a-z]*r`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`), // fork bomb
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`),
	regexp.MustCompile(`(?i)>\s*/dev/(sd[a-z]|nvme\d|hd[a-z])`),
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*777\s+/\s*$`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`(?i)\bkill\s+-9\s+1\b|\bpkill\s+-9\s+init\b`),
	regexp.MustCompile(`(?i)/etc/(passwd|shadow|sudoers)\b`),
	regexp.MustCompile(`(?i)\bhistory\s+-c\b`),
}

// destructivePatterns escalate an action to the destructive tier.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\b|\bdel\b|\brmdir\b`),
	regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`),
	regexp.MustCompile(`(?i)\btruncate\b`),
	regexp.MustCompile(`(?i)\bgit\s+(push\s+--force|reset\s+--hard|clean\s+-[a-z]*f)`),
	regexp.MustCompile(`(?i)\bkill(all)?\b|\bpkill\b`),
	regexp.MustCompile(`(?i)\bformat\b`),
	regexp.MustCompile(`(?i)\buninstall\b|\bapt(-get)?\s+remove\b|\bbrew\s+uninstall\b`),
}

// mediumPatterns escalate to the medium tier.
var mediumPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmv\b|\bmove\b|\brename\b`),
	regexp.MustCompile(`(?i)\bchmod\b|\bchown\b`),
	regexp.MustCompile(`(?i)\bgit\s+(commit|push|merge|rebase)\b`),
	regexp.MustCompile(`(?i)\b(apt(-get)?|brew|pip|npm|go)\s+install\b`),
	regexp.MustCompile(`(?i)>\s*\S|>>\s*\S`), // shell redirection writes
	regexp.MustCompile(`(?i)\bcurl\b.*-X\s*(POST|PUT|DELETE)\b`),
}

// injectionMarkers flag prompt-injection attempts in inbound text.
var injectionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(your|the)\s+(system\s+prompt|rules|guidelines)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(DAN|jailbroken|unfiltered)`),
	regexp.MustCompile(`(?i)\bnew\s+system\s+prompt\b`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|instructions|secrets)`),
}

// ValidateCommand rejects commands matching a never-allowed invariant.
func ValidateCommand(command string) error {
	for _, re := range neverAllowed {
		if re.MatchString(command) {
			logging.SafetyError("blocked command matching %q: %s", re.String(), command)
			return fmt.Errorf("command blocked by safety invariant")
		}
	}
	return nil
}

// ClassifyCommand assigns the safety tier of a raw command string.
func ClassifyCommand(command string) types.SafetyTier {
	for _, re := range neverAllowed {
		if re.MatchString(command) {
			return types.TierDestructive
		}
	}
	for _, re := range destructivePatterns {
		if re.MatchString(command) {
			return types.TierDestructive
		}
	}
	for _, re := range mediumPatterns {
		if re.MatchString(command) {
			return types.TierMedium
		}
	}
	return types.TierSafe
}

// SanitizeInput strips control characters from inbound text and reports
// whether it smells like prompt injection. Suspicious text is still
// processed; the flag raises the request's risk score.
func SanitizeInput(text string) (clean string, suspicious bool) {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	clean = strings.TrimSpace(b.String())

	for _, re := range injectionMarkers {
		if re.MatchString(clean) {
			logging.SafetyWarn("injection marker %q in input", re.String())
			return clean, true
		}
	}
	return clean, false
}
