// Package flagx helps several components share one command line: each picks
// out only the flags it understands before handing them to a flag.FlagSet.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps the flags named in allowedFlags together with their values
// and drops everything else. Both "-c conf.yaml" and "-c=conf.yaml" forms are
// recognised; a following token that starts with "-" is never taken as a
// value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigFileFlag returns the value of -c / -config found in args, or "" when
// neither is present. When both are given the last one wins.
func ConfigFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file (json or yaml)")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
