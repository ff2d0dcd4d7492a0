package shell

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// keepVars are environment variables whose values are not secret.
var keepVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"HISTFILE": true, "HISTSIZE": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true,
}

const redactedValue = "***"

// span is a byte range of the original command.
type span struct{ start, end int }

// Redact hides the values assigned to variables in a captured command, as in
// "TOKEN=abc ./deploy" or "export KEY=abc". Variable references and the rest
// of the command are kept byte for byte.
func Redact(cmd string) string {
	if !strings.Contains(cmd, "=") {
		return cmd
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return redactFallback(cmd)
	}

	var values []span
	syntax.Walk(prog, func(node syntax.Node) bool {
		a, ok := node.(*syntax.Assign)
		if !ok || a.Name == nil || a.Value == nil || keepVars[a.Name.Value] {
			return true
		}
		start, end := int(a.Value.Pos().Offset()), int(a.Value.End().Offset())
		if start < end && end <= len(cmd) {
			values = append(values, span{start, end})
		}
		return true
	})
	return splice(cmd, values)
}

// splice replaces each non-overlapping span of cmd with redactedValue.
func splice(cmd string, values []span) string {
	if len(values) == 0 {
		return cmd
	}
	sort.Slice(values, func(i, j int) bool { return values[i].start < values[j].start })

	var sb strings.Builder
	last := 0
	for _, v := range values {
		if v.start < last {
			continue
		}
		sb.WriteString(cmd[last:v.start])
		sb.WriteString(redactedValue)
		last = v.end
	}
	sb.WriteString(cmd[last:])
	return sb.String()
}

var reAssigned = regexp.MustCompile(`(^|[\s;&|(])([A-Za-z_][A-Za-z0-9_]*)=([^\s;&|)]+)`)

// redactFallback handles commands the parser rejects, such as unterminated quotes.
func redactFallback(cmd string) string {
	var values []span
	for _, m := range reAssigned.FindAllStringSubmatchIndex(cmd, -1) {
		if keepVars[cmd[m[4]:m[5]]] {
			continue
		}
		values = append(values, span{m[6], m[7]})
	}
	return splice(cmd, values)
}
