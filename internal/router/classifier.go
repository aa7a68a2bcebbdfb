package router

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/agentkit-run/agentkit/internal/core"
)

// codeVocabulary and contentVocabulary are the two small keyword sets §4.1
// scores the prompt against. Terms are deliberately short and generic —
// fuzzy.Find tolerates misspellings, so the vocabulary doesn't need every
// inflection of a word.
var codeVocabulary = []string{
	"refactor", "bug", "fix", "implement", "function", "method", "class",
	"struct", "compile", "build", "test", "debug", "api", "endpoint",
	"database", "migration", "schema", "regression", "stacktrace",
	"dependency", "package", "module", "interface", "algorithm", "query",
	"config", "deploy", "pipeline", "commit", "merge",
}

var contentVocabulary = []string{
	"write", "blog", "article", "summary", "summarize", "document",
	"readme", "proposal", "email", "translate", "copy", "caption",
	"outline", "newsletter", "press", "marketing", "tweet", "essay",
	"report", "brief", "description", "story", "plan", "pitch",
}

// fuzzyMatchFloor discards a vocabulary match whose score implies the word
// barely resembles any term — fuzzy.Find never returns a perfect-only
// filter, so very short, unrelated words would otherwise still register a
// non-zero score against something in the vocabulary.
const fuzzyMatchFloor = -20

// Classification is the result of scoring a prompt, returned alongside the
// chosen runner kind so the Task Router can publish it on the submission
// event per §4.1's observability requirement.
type Classification struct {
	Kind    core.RunnerKind
	Scores  map[string]float64
	CodeOriented bool
}

// classify scores prompt against both vocabularies and resolves the `auto`
// runner choice, deferring to codeOrientedWorkspace only on an exact tie.
func classify(prompt string, codeOrientedWorkspace bool) Classification {
	words := tokenize(prompt)
	codeScore := scoreAgainst(words, codeVocabulary)
	contentScore := scoreAgainst(words, contentVocabulary)

	var kind core.RunnerKind
	switch {
	case codeScore > contentScore:
		kind = core.RunnerExternalCLI
	case contentScore > codeScore:
		kind = core.RunnerEmbedded
	case codeOrientedWorkspace:
		kind = core.RunnerEmbedded
	default:
		kind = core.RunnerExternalCLI
	}

	return Classification{
		Kind: kind,
		Scores: map[string]float64{
			"code":    float64(codeScore),
			"content": float64(contentScore),
		},
		CodeOriented: codeOrientedWorkspace,
	}
}

func tokenize(prompt string) []string {
	fields := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

func scoreAgainst(words []string, vocabulary []string) int {
	total := 0
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		matches := fuzzy.Find(w, vocabulary)
		if len(matches) == 0 {
			continue
		}
		if best := matches[0].Score; best > fuzzyMatchFloor {
			total += best
		}
	}
	return total
}

// codeOrientedMarkers are files whose presence at a workspace root marks it
// as a source-controlled code project rather than a generic content
// workspace, for the classifier's tie-break.
var codeOrientedMarkers = []string{".git", "go.mod", "package.json", "pyproject.toml", "Cargo.toml"}

func isCodeOrientedWorkspace(workspace string) bool {
	if workspace == "" {
		return false
	}
	for _, marker := range codeOrientedMarkers {
		if _, err := os.Stat(filepath.Join(workspace, marker)); err == nil {
			return true
		}
	}
	return false
}
