package action

import (
	"strings"

	"github.com/ips6/pkgrepo/internal/errcode"
)

// requiredProperties lists the properties Parse treats as mandatory for
// each action kind, used to produce action::validation_error::missing_property.
var requiredProperties = map[Kind][]string{
	KindFile:     {"path"},
	KindDir:      {"path"},
	KindLink:     {"path", "target"},
	KindHardlink: {"path", "target"},
	KindLicense:  {"license"},
	KindDepend:   {"type", "fmri"},
	KindSet:      {"name"},
}

// Parse parses the textual manifest grammar: one action per logical line
// ("kind [payload] key=value ..."), with backslash-newline continuations,
// "#" comment lines and blank lines skipped. filename is used only to
// annotate error spans.
func Parse(data []byte, filename string) (Manifest, error) {
	joined, offsets := joinContinuations(data)

	var m Manifest
	offset := 0
	for _, line := range strings.Split(joined, "\n") {
		lineOffset := offsets(offset)
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "<transform") {
			// Transform rules are parsed as an opaque Legacy action; a
			// future transformation engine interprets select/op pairs.
			m.Actions = append(m.Actions, Action{Kind: KindLegacy, Payload: trimmed})
			continue
		}

		a, err := parseLine(trimmed, filename, lineOffset)
		if err != nil {
			return Manifest{}, err
		}
		m.Actions = append(m.Actions, a)
	}

	return m, nil
}

// joinContinuations collapses backslash-newline continuations into single
// logical lines, and returns a function mapping a byte offset in the
// joined text back to an offset in the original data (used for error
// spans). For simplicity and because continuations are rare, the mapping
// is approximate: it reports the offset of the start of the continued
// run in the original text.
func joinContinuations(data []byte) (string, func(int) int) {
	original := string(data)
	var b strings.Builder
	type lineStart struct{ joined, original int }
	var starts []lineStart // start offset in joined text -> start offset in original
	joinedPos, originalPos := 0, 0

	lines := strings.Split(original, "\n")
	for i, line := range lines {
		starts = append(starts, lineStart{joined: joinedPos, original: originalPos})
		originalPos += len(line) + 1

		if strings.HasSuffix(line, "\\") && i < len(lines)-1 {
			b.WriteString(strings.TrimSuffix(line, "\\"))
			b.WriteByte(' ')
			joinedPos += len(line)
		} else {
			b.WriteString(line)
			joinedPos += len(line) + 1
			if i != len(lines)-1 {
				b.WriteByte('\n')
			}
		}
	}

	joined := b.String()
	return joined, func(joinedOffset int) int {
		best := 0
		for _, s := range starts {
			if s.joined <= joinedOffset {
				best = s.original
			}
		}
		return best
	}
}

func parseLine(line, filename string, offset int) (Action, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return Action{}, errcode.ErrorCodeActionMalformedProperty.WithArgs(err.Error()).WithSpan(errcode.Span{
			File: filename, Offset: offset, Length: len(line),
		})
	}
	if len(tokens) == 0 {
		return Action{}, errcode.ErrorCodeActionUnknown.WithArgs("").WithSpan(errcode.Span{File: filename, Offset: offset})
	}

	kind := Kind(tokens[0])
	if !knownKinds[kind] {
		return Action{}, errcode.ErrorCodeActionUnknown.WithArgs(tokens[0]).WithSpan(errcode.Span{
			File: filename, Offset: offset, Length: len(tokens[0]),
		})
	}

	a := Action{Kind: kind}
	for _, tok := range tokens[1:] {
		if key, value, ok := strings.Cut(tok, "="); ok {
			a.Props = append(a.Props, Property{Key: key, Value: unquote(value)})
		} else if a.Payload == "" {
			a.Payload = tok
		} else {
			return Action{}, errcode.ErrorCodeActionMalformedProperty.WithArgs(tok).WithSpan(errcode.Span{
				File: filename, Offset: offset,
			})
		}
	}

	for _, req := range requiredProperties[kind] {
		if _, ok := a.Value(req); ok {
			continue
		}
		return Action{}, errcode.ErrorCodeActionMissingProperty.WithArgs(req).WithSpan(errcode.Span{
			File: filename, Offset: offset, Length: len(line),
		})
	}

	return a, nil
}

// tokenize splits a manifest line on whitespace, respecting double-quoted
// strings (which may themselves contain whitespace).
func tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	hasToken := false

	flush := func() {
		if hasToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			hasToken = false
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			hasToken = true
		case c == '\\' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
			hasToken = true
		case c == ' ' || c == '\t':
			if inQuotes {
				cur.WriteRune(c)
			} else {
				flush()
			}
		default:
			cur.WriteRune(c)
			hasToken = true
		}
	}
	if inQuotes {
		return nil, errUnterminatedQuote
	}
	flush()
	return tokens, nil
}

var errUnterminatedQuote = unterminatedQuoteError{}

type unterminatedQuoteError struct{}

func (unterminatedQuoteError) Error() string { return "unterminated quoted string" }

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		inner := v[1 : len(v)-1]
		return strings.ReplaceAll(inner, `\"`, `"`)
	}
	return v
}
