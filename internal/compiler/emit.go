package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forbearing/sqlwhitelist/internal/query"
	"github.com/stoewer/go-strcase"
)

// EmitJSON renders the whitelist as the indented JSON document a server
// loads at startup.
func EmitJSON(w *query.Whitelist) ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}

// Summary renders a short human-readable report of a compilation run: a
// section per referenced file (snake_cased so it reads consistently
// regardless of the source tree's own file-naming convention), one line
// per whitelisted query beneath it.
func Summary(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolved=%d unresolved=%d server-call-sites=%d\n",
		res.ResolvedCount, res.UnresolvedCount, res.ServerCallSites)

	byFile := make(map[string][]*query.Entry)
	var order []string
	for _, e := range res.Whitelist.Entries() {
		for _, loc := range e.Referenced {
			key := strcase.SnakeCase(loc.File)
			if _, seen := byFile[key]; !seen {
				order = append(order, key)
			}
			byFile[key] = append(byFile[key], e)
		}
	}

	for _, key := range order {
		fmt.Fprintf(&b, "\n# %s\n", key)
		for _, e := range byFile[key] {
			fmt.Fprintf(&b, "  %s  %s\n", e.Fingerprint, e.Text)
		}
	}

	if len(res.Warnings) > 0 {
		b.WriteString("\nwarnings:\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}
