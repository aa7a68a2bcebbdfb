package logging

import "regexp"

// Sanitizer redacts API keys, tokens, and similar secrets from log output.
// SanitizingHandler applies it to the message and every attribute of each
// record that the wrapped handler has enabled at the configured level.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: defaultSecretPatterns(), redacted: "[REDACTED]"}
}

func defaultSecretPatterns() []*regexp.Regexp {
	raw := []string{
		`sk-[A-Za-z0-9]{20,}`,                 // OpenAI-style
		`sk-ant-[a-zA-Z0-9-]{40,}`,             // Anthropic-style
		`AIza[a-zA-Z0-9_-]{35}`,                // Google AI
		`gh[pousa]_[A-Za-z0-9]{36}`,             // GitHub tokens
		`AKIA[0-9A-Z]{16}`,                      // AWS access key
		`xox[baprs]-[0-9a-zA-Z-]{10,}`,          // Slack
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)password["'\s:=]+[^\s"']{8,}`,
		`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	}
	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func (s *Sanitizer) Sanitize(input string) string {
	out := input
	for _, pattern := range s.patterns {
		out = pattern.ReplaceAllString(out, s.redacted)
	}
	return out
}

// SanitizeMap recursively redacts string values, used when logging tool
// invocation argument maps that may carry credentials as arguments.
func (s *Sanitizer) SanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = s.Sanitize(val)
		case map[string]any:
			out[k] = s.SanitizeMap(val)
		default:
			out[k] = v
		}
	}
	return out
}

func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
