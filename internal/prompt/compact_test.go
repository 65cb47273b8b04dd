package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/llm"
)

func TestTruncateMiddle(t *testing.T) {
	counter := llm.EstimateCounter{}

	t.Run("content under the cap is unchanged", func(t *testing.T) {
		got := truncateMiddle("short text", 800, counter)

		assert.Equal(t, "short text", got)
	})

	t.Run("trims whole lines around an omission marker", func(t *testing.T) {
		lines := make([]string, 100)
		for i := range lines {
			lines[i] = fmt.Sprintf("line %03d of source", i)
		}
		content := strings.Join(lines, "\n")

		got := truncateMiddle(content, 100, counter)

		assert.LessOrEqual(t, counter.Count(got), 100)
		assert.Contains(t, got, "lines omitted")
		assert.Contains(t, got, "line 000 of source")
		assert.Contains(t, got, "line 099 of source")
		assert.Less(t, len(got), len(content))
	})

	t.Run("uses singular marker for one omitted line", func(t *testing.T) {
		content := "aaaa\n" + strings.Repeat("b", 200) + "\ncccc"

		got := truncateMiddle(content, 10, counter)

		assert.Equal(t, "aaaa\n... (1 line omitted) ...\ncccc", got)
	})

	t.Run("falls back to a character cut for one huge line", func(t *testing.T) {
		content := strings.Repeat("x", 8000)

		got := truncateMiddle(content, 800, counter)

		assert.LessOrEqual(t, counter.Count(got), 800)
		assert.Contains(t, got, "... (truncated) ...")
		assert.True(t, strings.HasPrefix(got, "xxx"))
		assert.True(t, strings.HasSuffix(got, "xxx"))
	})
}

func TestKeepFirstEntries(t *testing.T) {
	t.Run("keeps the first entries and notes the rest", func(t *testing.T) {
		content := "fix one\n  detail\n\nfix two\n\nfix three"

		got := keepFirstEntries(content, 2)

		assert.Equal(t, "fix one\n  detail\n\nfix two\n\n... (1 more omitted)", got)
	})

	t.Run("content within the limit is unchanged", func(t *testing.T) {
		content := "fix one\n\nfix two"

		assert.Equal(t, content, keepFirstEntries(content, 2))
	})

	t.Run("extra blank lines do not create empty entries", func(t *testing.T) {
		content := "a\n\n\n\nb\n\nc"

		got := keepFirstEntries(content, 2)

		assert.Equal(t, "a\n\nb\n\n... (1 more omitted)", got)
	})
}

func TestKeepLines(t *testing.T) {
	t.Run("keeps the first n lines", func(t *testing.T) {
		lines := make([]string, 12)
		for i := range lines {
			lines[i] = fmt.Sprintf("- fact %d", i)
		}

		got := keepFirstLines(strings.Join(lines, "\n"), 10)

		kept := strings.Split(got, "\n")
		require.Len(t, kept, 11)
		assert.Equal(t, "- fact 0", kept[0])
		assert.Equal(t, "- fact 9", kept[9])
		assert.Equal(t, "... (2 more omitted)", kept[10])
	})

	t.Run("short content is unchanged", func(t *testing.T) {
		assert.Equal(t, "a\nb", keepFirstLines("a\nb", 10))
	})

	t.Run("keeps the last n lines", func(t *testing.T) {
		assert.Equal(t, "c", keepLastLines("a\nb\nc", 1))
		assert.Equal(t, "a\nb", keepLastLines("a\nb", 3))
	})
}

func TestMutateSection(t *testing.T) {
	t.Run("preserved sections are never touched", func(t *testing.T) {
		sections := []section{{name: sectionTask, content: "the goal"}}

		out, changed := mutateSection(sections, sectionTask, func(string) string { return "gone" })

		assert.False(t, changed)
		assert.Equal(t, "the goal", sectionContent(out, sectionTask))
	})

	t.Run("the input slice is not mutated", func(t *testing.T) {
		sections := []section{{name: constants.SectionActionHints, content: "use extract_function"}}

		out, changed := mutateSection(sections, constants.SectionActionHints, func(string) string { return "short" })

		assert.True(t, changed)
		assert.Equal(t, "use extract_function", sections[0].content)
		assert.Equal(t, "short", out[0].content)
	})

	t.Run("missing section changes nothing", func(t *testing.T) {
		sections := []section{{name: sectionTask, content: "the goal"}}

		_, changed := mutateSection(sections, constants.SectionActionHints, func(string) string { return "x" })

		assert.False(t, changed)
	})
}

func TestRemoveStep(t *testing.T) {
	t.Run("drops the named section", func(t *testing.T) {
		sections := []section{
			{name: sectionTask, content: "goal"},
			{name: constants.SectionAdditional, content: "extra"},
			{name: sectionDirective, content: "go"},
		}

		out, changed := removeStep(constants.SectionAdditional)(sections, llm.EstimateCounter{})

		assert.True(t, changed)
		assert.Empty(t, sectionContent(out, constants.SectionAdditional))
		assert.Len(t, out, 2)
	})

	t.Run("refuses to drop preserved sections", func(t *testing.T) {
		sections := []section{{name: sectionFingerprint, content: "py project"}}

		out, changed := removeStep(sectionFingerprint)(sections, llm.EstimateCounter{})

		assert.False(t, changed)
		assert.Len(t, out, 1)
	})
}

func TestBuilder_Compact(t *testing.T) {
	t.Run("stops as soon as the prompt fits", func(t *testing.T) {
		b := NewBuilder(nil, WithMaxTokens(1000))
		sections := []section{
			{name: sectionTask, content: "fix it"},
			{name: constants.SectionTargetSource, content: strings.Repeat("x", 8000)},
			{name: constants.SectionSimilarFixes, content: "fix one\n\nfix two\n\nfix three"},
		}

		out, estimate, applied := b.compact(0, sections)

		assert.Equal(t, []string{"truncate target_source"}, applied)
		assert.LessOrEqual(t, estimate, 1000)
		assert.Contains(t, sectionContent(out, constants.SectionTargetSource), "truncated")
		assert.Equal(t, "fix one\n\nfix two\n\nfix three", sectionContent(out, constants.SectionSimilarFixes))
	})

	t.Run("applies every tier when the budget is unreachable", func(t *testing.T) {
		b := NewBuilder(nil, WithMaxTokens(10))
		facts := make([]string, 12)
		for i := range facts {
			facts[i] = fmt.Sprintf("- fact %d", i)
		}
		sections := []section{
			{name: sectionTask, content: "fix it"},
			{name: constants.SectionTargetSource, content: strings.Repeat("x", 8000)},
			{name: constants.SectionSimilarFixes, content: "one\n\ntwo\n\nthree"},
			{name: constants.SectionSimilarImplementations, content: "alpha\n\nbeta\n\ngamma"},
			{name: sectionUnderstanding, content: strings.Join(facts, "\n")},
			{name: constants.SectionActionHints, content: strings.Repeat("h", 600)},
			{name: constants.SectionRelatedPatterns, content: strings.Repeat("p", 2000)},
			{name: constants.SectionFileOverview, content: strings.Repeat("o", 2000)},
			{name: sectionRecent, content: "Step 1: read\nStep 2: edit\nStep 3: check"},
			{name: constants.SectionAdditional, content: "extra"},
			{name: constants.SectionRelatedCode, content: "nearby code"},
		}

		out, _, applied := b.compact(0, sections)

		want := []string{
			"truncate target_source",
			"keep first similar_fixes",
			"keep first similar_implementations",
			"cap understanding facts",
			"truncate action_hints",
			"truncate related_patterns and file_overview",
			"keep most recent action",
			"remove additional",
			"remove related_code",
		}
		assert.Equal(t, want, applied)
		assert.Empty(t, sectionContent(out, constants.SectionAdditional))
		assert.Empty(t, sectionContent(out, constants.SectionRelatedCode))
		assert.Equal(t, "Step 3: check", sectionContent(out, sectionRecent))
		assert.Contains(t, sectionContent(out, constants.SectionSimilarFixes), "(1 more omitted)")
		assert.Contains(t, sectionContent(out, sectionUnderstanding), "- fact 9")
		assert.NotContains(t, sectionContent(out, sectionUnderstanding), "- fact 10")
		assert.Equal(t, "fix it", sectionContent(out, sectionTask))
	})

	t.Run("skips tiers whose sections are absent", func(t *testing.T) {
		b := NewBuilder(nil, WithMaxTokens(10))
		sections := []section{
			{name: sectionTask, content: "fix it"},
			{name: constants.SectionAdditional, content: strings.Repeat("a", 400)},
		}

		out, _, applied := b.compact(0, sections)

		assert.Equal(t, []string{"remove additional"}, applied)
		assert.Len(t, out, 1)
	})
}
