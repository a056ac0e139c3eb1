package spot

import "strings"

const delimiter = `","`

// Tokenize splits one SPOT line into fields. The line is split on `","`,
// then each field loses surrounding whitespace and one layer of double
// quotes. A leading opcode written without quotes, as in
// `ADDITEM,"FULL-1",...`, is split off at its first comma.
func Tokenize(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var head string
	if !strings.HasPrefix(line, `"`) {
		if op, rest, ok := strings.Cut(line, ","); ok && !strings.Contains(op, `"`) {
			head, line = op, rest
		}
	}

	parts := strings.Split(line, delimiter)
	fields := make([]string, 0, len(parts)+1)
	if head != "" {
		fields = append(fields, strings.TrimSpace(head))
	}
	for _, p := range parts {
		fields = append(fields, cleanField(p))
	}
	return fields
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.TrimSpace(s)
}
