package prover

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/sagredo/internal/checker"
)

var (
	leanFence     = regexp.MustCompile("(?s)```lean4?[ \t]*\r?\n(.*?)```")
	untaggedFence = regexp.MustCompile("(?s)```[ \t]*\r?\n(.*?)```")
	sorryToken    = regexp.MustCompile(`\bsorry\b`)
)

// ExtractCode returns the first fenced lean block of a completion, or the
// first untagged fence when there is none.
func ExtractCode(completion string) (string, error) {
	if m := leanFence.FindStringSubmatch(completion); m != nil {
		return strings.TrimRight(m[1], "\r\n"), nil
	}
	if m := untaggedFence.FindStringSubmatch(completion); m != nil {
		return strings.TrimRight(m[1], "\r\n"), nil
	}
	return "", ErrNoCodeBlockFound
}

// ContainsSorry reports whether source uses the sorry placeholder as a token.
func ContainsSorry(source string) bool {
	return sorryToken.MatchString(source)
}

// errorState renders error messages for the "new goal state" prompt.
func errorState(fb *checker.Feedback) string {
	var b strings.Builder
	for i, m := range fb.Errors() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "error at %s:\n%s", m.Pos, m.Data)
	}
	return b.String()
}

// goalState joins outstanding goals verbatim.
func goalState(fb *checker.Feedback) string {
	return strings.Join(fb.Goals(), "\n\n")
}
