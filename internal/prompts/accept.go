package prompts

import (
	"fmt"
	"strings"
)

// forbiddenKeywords are statement forms the query stage never executes.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "create", "drop", "alter",
	"attach", "detach", "copy", "pragma", "set", "install", "load",
	"call", "export", "import", "truncate", "merge", "grant",
}

// AcceptSQL validates a synthesised response: after stripping code fences
// it must be exactly one SELECT statement. It returns the cleaned SQL or
// the rejection reason fed back into the retry prompt.
func AcceptSQL(response string) (string, error) {
	sql := stripFences(strings.TrimSpace(response))
	if sql == "" {
		return "", fmt.Errorf("response is empty")
	}

	// A single optional trailing semicolon is tolerated; anything after it
	// means more than one statement.
	if i := strings.Index(sql, ";"); i >= 0 {
		if rest := strings.TrimSpace(sql[i+1:]); rest != "" {
			return "", fmt.Errorf("more than one statement")
		}
		sql = strings.TrimSpace(sql[:i])
	}

	first := firstWord(sql)
	switch first {
	case "select", "with":
	default:
		for _, kw := range forbiddenKeywords {
			if first == kw {
				return "", fmt.Errorf("statement is %s, only SELECT is allowed", strings.ToUpper(first))
			}
		}
		return "", fmt.Errorf("not a SELECT statement")
	}

	// A WITH chain must still end in a SELECT, not feed DML.
	lower := " " + strings.ToLower(sql) + " "
	for _, kw := range forbiddenKeywords {
		if strings.Contains(lower, " "+kw+" ") && kw != "set" {
			return "", fmt.Errorf("forbidden keyword %s", strings.ToUpper(kw))
		}
	}

	return sql, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, which models add despite instructions.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop a language tag like "sql" on the fence line.
		firstLine := strings.TrimSpace(s[:i])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, " \t") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
