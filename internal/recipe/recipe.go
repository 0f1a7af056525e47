// Package recipe parses container build recipes (Dockerfiles) and checks them
// for configuration mistakes that only show up at build or run time.
package recipe

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Runtime is the language toolchain a base image provides.
type Runtime string

const (
	RuntimePython  Runtime = "python"
	RuntimeNode    Runtime = "node"
	RuntimeUnknown Runtime = "unknown"
)

// Command is one parsed instruction.
type Command struct {
	Keyword  string   `json:"keyword" yaml:"keyword"`
	Args     []string `json:"args" yaml:"args"`
	Original string   `json:"original" yaml:"original"`
	Line     int      `json:"line" yaml:"line"`
	// Stage is the index of the FROM the instruction belongs to, -1 before the first.
	Stage int `json:"stage" yaml:"stage"`
	// Exec is true for the JSON (exec) form of RUN, CMD and ENTRYPOINT.
	Exec bool `json:"exec,omitempty" yaml:"exec,omitempty"`
}

// Recipe is the lint-relevant view of a Dockerfile. For multi-stage files
// BaseImage, Runtime, Env, ExposedPorts and Entrypoint describe the final stage;
// Commands and Copies span every stage.
type Recipe struct {
	Path         string            `json:"path" yaml:"path"`
	BaseImage    string            `json:"base_image" yaml:"base_image"`
	Runtime      Runtime           `json:"runtime" yaml:"runtime"`
	Commands     []Command         `json:"commands" yaml:"commands"`
	Env          map[string]string `json:"env" yaml:"env"`
	ExposedPorts []int             `json:"exposed_ports" yaml:"exposed_ports"`
	Entrypoint   []string          `json:"entrypoint" yaml:"entrypoint"`
	Copies       []Command         `json:"copies" yaml:"copies"`

	stages     []stage
	envLines   map[string]int
	exposeLine int
	entryLine  int
	hasEntry   bool
	shellEntry bool
}

type stage struct {
	image   string
	runtime Runtime
}

// stageOf returns the base image and runtime of stage i.
func (r *Recipe) stageOf(i int) stage {
	if i < 0 || i >= len(r.stages) {
		return stage{runtime: RuntimeUnknown}
	}
	return r.stages[i]
}

// resetStage drops the state a new FROM does not inherit.
func (r *Recipe) resetStage() {
	r.Env = map[string]string{}
	r.envLines = map[string]int{}
	r.ExposedPorts = nil
	r.exposeLine = 0
	r.hasEntry, r.entryLine, r.shellEntry = false, 0, false
}

// Parse reads a Dockerfile. A file with no instructions yields an empty recipe.
func Parse(path string, r io.Reader) (*Recipe, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rec := &Recipe{
		Path:     path,
		Runtime:  RuntimeUnknown,
		Env:      map[string]string{},
		envLines: map[string]int{},
	}
	if !hasInstructions(src) {
		return rec, nil
	}

	res, err := parser.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var cmd, entry []string
	current := -1
	for _, n := range res.AST.Children {
		keyword := strings.ToUpper(n.Value)
		if keyword == "FROM" {
			current++
		}
		c := Command{
			Keyword:  keyword,
			Args:     args(n),
			Original: n.Original,
			Line:     n.StartLine,
			Stage:    current,
			Exec:     n.Attributes["json"],
		}
		rec.Commands = append(rec.Commands, c)

		switch keyword {
		case "FROM":
			rec.resetStage()
			cmd, entry = nil, nil
			st := stage{runtime: RuntimeUnknown}
			if len(c.Args) > 0 {
				st = stage{image: c.Args[0], runtime: runtimeOf(c.Args[0])}
			}
			rec.stages = append(rec.stages, st)
			rec.BaseImage, rec.Runtime = st.image, st.runtime
		case "ENV":
			for _, kv := range envPairs(c.Args) {
				rec.Env[kv[0]] = strings.Trim(kv[1], `"'`)
				rec.envLines[kv[0]] = c.Line
			}
		case "EXPOSE":
			if rec.exposeLine == 0 {
				rec.exposeLine = c.Line
			}
			for _, p := range c.Args {
				if port, ok := parsePort(p); ok {
					rec.ExposedPorts = append(rec.ExposedPorts, port)
				}
			}
		case "COPY", "ADD":
			rec.Copies = append(rec.Copies, c)
		case "CMD":
			cmd = c.Args
			rec.hasEntry, rec.entryLine = true, c.Line
			rec.shellEntry = !c.Exec
		case "ENTRYPOINT":
			entry = c.Args
			rec.hasEntry, rec.entryLine = true, c.Line
			rec.shellEntry = !c.Exec
		}
	}
	rec.Entrypoint = append(append([]string{}, entry...), cmd...)
	return rec, nil
}

// ParseFile opens and parses path.
func ParseFile(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(path, f)
}

func args(n *parser.Node) []string {
	var out []string
	for next := n.Next; next != nil; next = next.Next {
		out = append(out, next.Value)
	}
	return out
}

// envPairs groups ENV arguments into name/value pairs. Depending on the parser
// version each pair may be followed by a separator node ("=" or "").
func envPairs(a []string) [][2]string {
	step := 2
	if len(a) >= 3 && len(a)%3 == 0 && (a[2] == "=" || a[2] == "") {
		step = 3
	}
	var out [][2]string
	for i := 0; i+1 < len(a); i += step {
		out = append(out, [2]string{a[i], a[i+1]})
	}
	return out
}

func hasInstructions(src []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

func runtimeOf(image string) Runtime {
	name := strings.ToLower(image)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, ":@"); i >= 0 {
		name = name[:i]
	}
	switch {
	case strings.Contains(name, "python"):
		return RuntimePython
	case strings.Contains(name, "node"):
		return RuntimeNode
	default:
		return RuntimeUnknown
	}
}

// parsePort accepts "8050" and "8050/tcp". Ranges and variables are skipped.
func parsePort(s string) (int, bool) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}
