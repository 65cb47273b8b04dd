package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical section names for the fixed blocks of the user message.
// Tier-2 blocks use the precomputed section names from constants.
const (
	sectionFingerprint   = "fingerprint"
	sectionTask          = "task"
	sectionPhase         = "phase"
	sectionUnderstanding = "understanding"
	sectionRecent        = "recent"
	sectionActions       = "actions"
	sectionDirective     = "directive"
)

// fingerprintPrefix marks subsections preserved along with the fingerprint.
const fingerprintPrefix = "fingerprint."

// section is one labeled block of the user message.
type section struct {
	name    string
	content string
}

// sectionHeaders maps the fixed section names to their display headers.
// Tier-2 names derive their header from the name itself.
//
//nolint:gochecknoglobals // Read-only lookup table
var sectionHeaders = map[string]string{
	sectionFingerprint:   "Project Fingerprint",
	sectionTask:          "Task",
	sectionPhase:         "Phase",
	sectionUnderstanding: "Understanding",
	sectionRecent:        "Recent Actions",
	sectionActions:       "Available Actions",
	sectionDirective:     "Directive",
}

// headerFor derives the human-readable header for a section name:
// "target_source" renders as "Target Source".
func headerFor(name string) string {
	if h, ok := sectionHeaders[name]; ok {
		return h
	}
	cleaned := strings.NewReplacer("_", " ", ".", " ").Replace(name)
	return cases.Title(language.English).String(cleaned)
}

// preserved reports whether a section is exempt from compaction. The
// fingerprint, task, and phase blocks always survive, as does any
// subsection under the fingerprint prefix.
func preserved(name string) bool {
	switch name {
	case sectionFingerprint, sectionTask, sectionPhase:
		return true
	}
	return strings.HasPrefix(name, fingerprintPrefix)
}

// renderSections assembles the user message. Blank sections are skipped.
func renderSections(sections []section) string {
	var sb strings.Builder
	for _, sec := range sections {
		if strings.TrimSpace(sec.content) == "" {
			continue
		}
		sb.WriteString("== ")
		sb.WriteString(headerFor(sec.name))
		sb.WriteString(" ==\n")
		sb.WriteString(strings.TrimRight(sec.content, "\n"))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// sectionContent returns a named section's content, empty when absent.
func sectionContent(sections []section, name string) string {
	for _, sec := range sections {
		if sec.name == name {
			return sec.content
		}
	}
	return ""
}
