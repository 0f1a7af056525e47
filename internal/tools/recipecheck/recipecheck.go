// Package recipecheck lints Dockerfiles from the command line.
package recipecheck

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"fateweaver/internal/recipe"
)

// ErrUsage marks invalid invocations. The command exits 2 for these.
var ErrUsage = errors.New("usage")

// Config holds the parsed command line.
type Config struct {
	Format string
	Paths  []string
}

// ParseConfig parses flags into a Config. Remaining arguments are Dockerfile paths.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Format: "text"}
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	cfg.Paths = fs.Args()
	if len(cfg.Paths) == 0 {
		return Config{}, fmt.Errorf("%w: at least one Dockerfile path is required", ErrUsage)
	}
	switch cfg.Format {
	case "text", "json", "yaml":
	default:
		return Config{}, fmt.Errorf("%w: unknown format %q", ErrUsage, cfg.Format)
	}
	return cfg, nil
}

// Run checks every path and writes the reports to out.
// It returns true when every recipe passed.
func Run(cfg Config, out io.Writer) (bool, error) {
	if out == nil {
		return false, errors.New("output is required")
	}

	reports := make([]*recipe.Report, 0, len(cfg.Paths))
	ok := true
	for _, p := range cfg.Paths {
		rep, err := checkFile(p)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", p, err)
		}
		if rep.Findings == nil {
			rep.Findings = []recipe.Finding{}
		}
		ok = ok && rep.OK()
		reports = append(reports, rep)
	}

	switch cfg.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return ok, enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return ok, err
		}
		return ok, enc.Close()
	default:
		return ok, writeText(out, reports)
	}
}

func checkFile(path string) (*recipe.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return recipe.Check(path, f)
}

func writeText(out io.Writer, reports []*recipe.Report) error {
	for _, rep := range reports {
		path := rep.Recipe.Path
		if len(rep.Findings) == 0 {
			if _, err := fmt.Fprintf(out, "%s: ok\n", path); err != nil {
				return err
			}
			continue
		}
		for _, f := range rep.Findings {
			loc := path
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", path, f.Line)
			}
			if _, err := fmt.Fprintf(out, "%s: %s %s: %s\n", loc, f.Severity, f.Rule, f.Message); err != nil {
				return err
			}
		}
	}
	return nil
}
