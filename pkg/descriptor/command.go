package descriptor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/google/shlex"

	"github.com/core-tools/hsu-procset/pkg/errors"
)

// shellSyntax marks invocations that must go through a shell as-is
const shellSyntax = "|;&<>$`*?(){}\n"

var delayPrefix = regexp.MustCompile(`^\s*sleep\s+(\d+)\s*&&\s*`)

var logFileFlags = map[string]bool{
	"--logfile":        true,
	"--log-file":       true,
	"--access-logfile": true,
	"--error-logfile":  true,
}

type invocation struct {
	delay      time.Duration
	body       string
	executable string
	args       []string
	logFiles   []string
}

// parseScript decomposes a shell command into delay, executable, arguments
// and embedded log paths.
func parseScript(script string) (invocation, error) {
	var inv invocation

	body := script
	if m := delayPrefix.FindStringSubmatchIndex(script); m != nil {
		seconds, err := strconv.Atoi(script[m[2]:m[3]])
		if err != nil {
			return inv, errors.NewConfigError("invalid startup delay", err)
		}
		inv.delay = time.Duration(seconds) * time.Second
		body = script[m[1]:]
	}
	inv.body = strings.TrimSpace(body)
	if inv.body == "" {
		return inv, errors.NewConfigError("command has nothing to run after the startup delay", nil)
	}

	words, err := shlex.Split(inv.body)
	if err != nil {
		return inv, errors.NewConfigError("cannot split command into words", err)
	}
	if len(words) == 0 {
		return inv, errors.NewConfigError("command has nothing to run", nil)
	}
	inv.logFiles = findLogFiles(words)

	if !strings.ContainsAny(inv.body, shellSyntax) && !needsShell(words[0]) {
		inv.executable = words[0]
		inv.args = words[1:]
	}
	return inv, nil
}

// needsShell reports a first word only a shell can interpret: a leading
// variable assignment or a home directory reference.
func needsShell(word string) bool {
	if strings.HasPrefix(word, "~") {
		return true
	}
	name, _, ok := strings.Cut(word, "=")
	return ok && !strings.Contains(name, "/")
}

// renderScript is the inverse of parseScript for structured entries
func renderScript(delay time.Duration, argv []string) string {
	command := shellescape.QuoteCommand(argv)
	if delay > 0 {
		return "sleep " + strconv.Itoa(int(delay/time.Second)) + " && " + command
	}
	return command
}

func findLogFiles(words []string) []string {
	var files []string
	for i, word := range words {
		if flag, value, ok := strings.Cut(word, "="); ok {
			if logFileFlags[flag] && value != "" && value != "-" {
				files = append(files, value)
			}
			continue
		}
		if logFileFlags[word] && i+1 < len(words) && words[i+1] != "-" {
			files = append(files, words[i+1])
		}
	}
	return files
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
