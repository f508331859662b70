package rustsyntax

import (
	"strings"
)

const indentUnit = "    "

// Print lays f out canonically: attributes and items one after another, each
// line indented by four spaces per level of open delimiters, trailing
// whitespace removed and blank-line runs collapsed. Text inside literals and
// comments is left as is.
func Print(f *File) string {
	var parts []string
	for _, attr := range f.Attrs {
		parts = append(parts, strings.TrimSpace(attr.Text))
	}
	for _, item := range f.Items {
		parts = append(parts, strings.TrimSpace(item.Text))
	}
	if f.Trailing != "" {
		parts = append(parts, f.Trailing)
	}
	if len(parts) == 0 {
		return ""
	}
	return Reindent(strings.Join(parts, "\n"))
}

// Reindent applies the canonical line layout of Print to arbitrary source.
// Source that does not tokenize is returned unchanged.
func Reindent(src string) string {
	tokens, err := Tokenize(src)
	if err != nil {
		return src
	}

	lines := strings.Split(src, "\n")
	startsInside := make([]bool, len(lines))
	endsInside := make([]bool, len(lines))
	byLine := make([][]Token, len(lines))
	for _, token := range tokens {
		byLine[token.Line] = append(byLine[token.Line], token)
		for line := token.Line; line < token.EndLine; line++ {
			endsInside[line] = true
			startsInside[line+1] = true
		}
	}

	var out []string
	var stack []int
	blank := false
	for n, line := range lines {
		if startsInside[n] {
			out = append(out, strings.TrimRight(line, "\r"))
			stack = consume(stack, byLine[n], n)
			blank = false
			continue
		}

		text := strings.TrimLeft(line, " \t")
		if !endsInside[n] {
			text = strings.TrimRight(text, " \t\r")
		}

		if text == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false

		lineTokens := byLine[n]
		k := 0
		for k < len(lineTokens) && lineTokens[k].Kind == Close {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			k++
		}
		out = append(out, strings.Repeat(indentUnit, levels(stack))+text)
		stack = consume(stack, lineTokens[k:], n)
	}

	return strings.Join(out, "\n") + "\n"
}

// consume applies the delimiters of tokens opened or closed on line.
func consume(stack []int, tokens []Token, line int) []int {
	for _, token := range tokens {
		switch token.Kind {
		case Open:
			stack = append(stack, line)
		case Close:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack
}

// levels counts the distinct lines that still have open delimiters, so that
// `foo(|| {` indents its body once rather than twice.
func levels(stack []int) int {
	count := 0
	for i, line := range stack {
		if i == 0 || stack[i-1] != line {
			count++
		}
	}
	return count
}
