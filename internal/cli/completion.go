package cli

import (
	"fmt"
	"io"
	"strings"
)

// Command describes one feedctl subcommand for completion scripts.
type Command struct {
	Name  string
	Usage string
}

// WriteCompletion writes a completion script for prog to w.
func WriteCompletion(w io.Writer, shell, prog string, commands []Command, flags []string) error {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.Name
	}
	fn := "_" + strings.ReplaceAll(prog, "-", "_")

	switch shell {
	case "bash":
		fmt.Fprintf(w, `# bash completion for %[1]s
%[2]s() {
    local cur="${COMP_WORDS[COMP_CWORD]}"
    local prev="${COMP_WORDS[COMP_CWORD-1]}"
    case "${prev}" in
        -config) COMPREPLY=( $(compgen -f -- "${cur}") ); return 0 ;;
        completion) COMPREPLY=( $(compgen -W "bash zsh fish" -- "${cur}") ); return 0 ;;
    esac
    if [[ ${COMP_CWORD} -eq 1 || "${cur}" == -* ]]; then
        COMPREPLY=( $(compgen -W "%[3]s %[4]s" -- "${cur}") )
    fi
}
complete -F %[2]s %[1]s
`, prog, fn, strings.Join(names, " "), strings.Join(flags, " "))
	case "zsh":
		fmt.Fprintf(w, "#compdef %s\n\n%s() {\n    local -a commands\n    commands=(\n", prog, fn)
		for _, c := range commands {
			fmt.Fprintf(w, "        '%s:%s'\n", c.Name, strings.ReplaceAll(c.Usage, "'", ""))
		}
		fmt.Fprintf(w, "    )\n    _describe 'command' commands\n}\n\ncompdef %s %s\n", fn, prog)
	case "fish":
		fmt.Fprintf(w, "# fish completion for %s\n", prog)
		for _, c := range commands {
			fmt.Fprintf(w, "complete -c %s -f -n '__fish_use_subcommand' -a %s -d '%s'\n", prog, c.Name, strings.ReplaceAll(c.Usage, "'", ""))
		}
		for _, f := range flags {
			fmt.Fprintf(w, "complete -c %s -o %s\n", prog, strings.TrimLeft(f, "-"))
		}
	default:
		return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
	return nil
}
