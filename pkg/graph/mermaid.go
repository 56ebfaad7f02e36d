package graph

import (
	"fmt"
	"strings"
)

// Mermaid renders the plan as a Mermaid flowchart. Shapes:
//   - server: [[Subroutine]]
//   - file: [/Parallelogram/]
//   - other models: [Rectangle]
//
// Edges crossing transports are dotted; RPC pairs are drawn client to server.
func Mermaid(p *Plan) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, m := range p.Graph.Models {
		opener, closer := "[", "]"
		if m.Server {
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(m.Name), opener, m.Name, closer)
	}

	files := make(map[string]bool)
	node := func(e Endpoint) string {
		if !e.IsFile() {
			return sanitizeMermaidID(e.Model)
		}
		id := "file_" + sanitizeMermaidID(e.File)
		if !files[id] {
			files[id] = true
			fmt.Fprintf(&sb, "    %s[/\"%s\"/]\n", id, strings.ReplaceAll(e.File, "\"", "'"))
		}
		return id
	}

	for _, c := range p.Connections {
		from, to := node(c.From), node(c.To)
		label := c.From.Channel
		if label == "" {
			label = c.To.Channel
		}
		if c.Translator != "" {
			label += " (" + c.Translator + ")"
		}
		arrow := fmt.Sprintf("-- \"%s\" -->", label)
		if !c.From.IsFile() && !c.To.IsFile() && c.From.Transport != c.To.Transport {
			arrow = fmt.Sprintf("-. \"%s\" .->", label)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", from, arrow, to)
	}

	for _, pair := range p.Pairs {
		fmt.Fprintf(&sb, "    %s == \"rpc\" ==> %s\n", sanitizeMermaidID(pair.Client), sanitizeMermaidID(pair.Server))
	}
	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", ":", "_")
	return r.Replace(id)
}
