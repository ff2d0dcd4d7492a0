package shell

import (
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/kj-assistant/kj"
)

// IsSelfInvocation reports whether command starts by running kj itself, which
// means stdin came from the terminal rather than from another program.
func IsSelfInvocation(command string) bool {
	name := firstWord(command)
	return filepath.Base(name) == kj.Name
}

// firstWord returns the program name of the first simple command.
func firstWord(command string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		if fields := strings.Fields(command); len(fields) > 0 {
			return fields[0]
		}
		return ""
	}

	var name string
	syntax.Walk(prog, func(node syntax.Node) bool {
		if name != "" {
			return false
		}
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name = call.Args[0].Lit()
		if name == "" {
			// Not a plain literal, e.g. "$CMD". Use its source text.
			var sb strings.Builder
			syntax.NewPrinter().Print(&sb, call.Args[0])
			name = sb.String()
		}
		return false
	})
	return name
}
