package main

import (
	"fmt"
	"io"
)

// emitBashCompletions writes a minimal bash completion script for rsb's
// flags. rsb has no subcommands, so this is a flat -W word list rather than
// the tree-walking completion functions a multi-command CLI would need.
func emitBashCompletions(w io.Writer) {
	const flags = "-c -t -l -percentiles -m -a -H -n -d -r -cert -key -k " +
		"-json-file -json-body -text-file -text-body -mp -mp-file -form " +
		"-output-format -h2 -progress -completions -v"

	fmt.Fprintf(w, `_rsb_completions() {
    local cur words
    cur="${COMP_WORDS[COMP_CWORD]}"
    words="%s"
    COMPREPLY=($(compgen -W "${words}" -- "${cur}"))
}
complete -F _rsb_completions rsb
`, flags)
}
