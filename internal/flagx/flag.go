// Package flagx lets the configuration flag set share a command line with
// the cobra command tree: configuration flags are picked out of the raw
// arguments before the standard flag package parses them.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// splitFlag separates "-name=value" into its parts. ok is false for
// arguments that are not flags.
func splitFlag(arg string) (name, value string, inline, ok bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", "", false, false
	}
	name, value, inline = strings.Cut(arg, "=")
	return name, value, inline, true
}

// FilterArgs keeps the flags of args named in allowed together with their
// values, written either as "-d db.sqlite" or as "-d=db.sqlite". A separate
// value is only taken when it does not itself look like a flag. Nothing
// after a "--" terminator is considered.
func FilterArgs(args []string, allowed []string) []string {
	known := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		known[f] = true
	}

	var out []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
		name, _, inline, ok := splitFlag(args[i])
		if !ok || !known[name] {
			continue
		}
		out = append(out, args[i])
		if inline || i+1 >= len(args) {
			continue
		}
		if next := args[i+1]; next != "--" && !strings.HasPrefix(next, "-") {
			out = append(out, next)
			i++
		}
	}
	return out
}

// ConfigPath returns the JSON config file named with -c, -config or
// --config, or "" when there is none.
func ConfigPath(args []string) string {
	var path string
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to the JSON config file")
	fs.StringVar(&path, "c", "", "path to the JSON config file")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))
	return path
}
