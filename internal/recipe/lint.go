package recipe

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Severity grades a finding. Only errors fail a check.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule names.
const (
	RuleCopyMalformed   = "copy-malformed"
	RulePortMismatch    = "port-mismatch"
	RuleRuntimeMismatch = "runtime-mismatch"
	RuleNoExpose        = "no-expose"
	RuleNoEntrypoint    = "no-entrypoint"
	RuleMissingFrom     = "missing-from"
)

// Finding is one problem. Line 0 means the whole file.
type Finding struct {
	Line     int      `json:"line" yaml:"line"`
	Rule     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

// Report is the outcome of checking one recipe.
type Report struct {
	Recipe   *Recipe   `json:"recipe" yaml:"recipe"`
	Findings []Finding `json:"findings" yaml:"findings"`
}

// OK reports whether no finding is an error.
func (r *Report) OK() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

var runtimeTools = map[Runtime][]string{
	RuntimePython: {"python", "python3", "pip", "pip3", "gunicorn", "uvicorn"},
	RuntimeNode:   {"node", "npm", "npx", "yarn", "pnpm"},
}

// Check parses and lints a recipe.
func Check(path string, r io.Reader) (*Report, error) {
	rec, err := Parse(path, r)
	if err != nil {
		return nil, err
	}
	return &Report{Recipe: rec, Findings: Lint(rec)}, nil
}

// Lint runs every rule against rec. Findings are ordered by line.
func Lint(rec *Recipe) []Finding {
	var out []Finding
	add := func(line int, rule string, sev Severity, format string, a ...any) {
		out = append(out, Finding{Line: line, Rule: rule, Severity: sev, Message: fmt.Sprintf(format, a...)})
	}

	if rec.BaseImage == "" {
		add(0, RuleMissingFrom, SeverityError, "no FROM instruction")
	}
	if !rec.hasEntry {
		add(0, RuleNoEntrypoint, SeverityError, "neither CMD nor ENTRYPOINT is set; the container has nothing to run")
	}
	if rec.exposeLine == 0 && rec.BaseImage != "" {
		add(0, RuleNoExpose, SeverityWarning, "no EXPOSE instruction")
	}

	for _, c := range rec.Copies {
		switch {
		case len(c.Args) < 2:
			add(c.Line, RuleCopyMalformed, SeverityError, "%s needs a source and a destination", c.Keyword)
		default:
			for _, a := range c.Args {
				if strings.HasPrefix(a, "#") {
					add(c.Line, RuleCopyMalformed, SeverityError, "%s argument %q is a comment, not a path", c.Keyword, a)
					break
				}
			}
		}
	}

	if v, ok := rec.Env["PORT"]; ok && len(rec.ExposedPorts) > 0 {
		port, err := strconv.Atoi(v)
		if err == nil && !containsInt(rec.ExposedPorts, port) {
			add(rec.envLines["PORT"], RulePortMismatch, SeverityWarning,
				"ENV PORT=%d but EXPOSE declares %s", port, joinInts(rec.ExposedPorts))
		}
	}

	for _, c := range rec.Commands {
		if c.Keyword != "RUN" {
			continue
		}
		st := rec.stageOf(c.Stage)
		if tool := firstTool(c.Args, !c.Exec, foreignTools(st.runtime)); tool != "" {
			add(c.Line, RuleRuntimeMismatch, SeverityError, "RUN uses %s on a %s base image (%s)", tool, st.runtime, st.image)
		}
	}
	if foreign := foreignTools(rec.Runtime); len(foreign) > 0 {
		if tool := firstTool(rec.Entrypoint, rec.shellEntry, foreign); tool != "" {
			add(rec.entryLine, RuleRuntimeMismatch, SeverityError, "entry command runs %s on a %s base image (%s)", tool, rec.Runtime, rec.BaseImage)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

func foreignTools(rt Runtime) map[string]bool {
	if rt == RuntimeUnknown {
		return nil
	}
	out := map[string]bool{}
	for other, tools := range runtimeTools {
		if other == rt {
			continue
		}
		for _, t := range tools {
			out[t] = true
		}
	}
	return out
}

// firstTool returns the first program in args that belongs to tools. Shell-form
// arguments are split into simple commands on &&, ||, ; and |.
func firstTool(args []string, shell bool, tools map[string]bool) string {
	var programs []string
	if shell {
		line := strings.Join(args, " ")
		for _, sep := range []string{"&&", "||", ";", "|"} {
			line = strings.ReplaceAll(line, sep, "\n")
		}
		for _, seg := range strings.Split(line, "\n") {
			for _, f := range strings.Fields(seg) {
				if strings.Contains(f, "=") {
					continue
				}
				programs = append(programs, f)
				break
			}
		}
	} else if len(args) > 0 {
		programs = append(programs, args[0])
	}
	for _, p := range programs {
		if name := path.Base(p); tools[name] {
			return name
		}
	}
	return ""
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func joinInts(xs []int) string {
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, ", ")
}
