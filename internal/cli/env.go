package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"regexp"
	"slices"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/ini.v1"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

const (
	formatTOML = "toml"
	formatINI  = "ini"
)

// envScript prints the PEP 508 marker values of the running interpreter.
const envScript = `import json, os, platform, sys, sysconfig
print(json.dumps({
    "os_name": os.name,
    "platform_tag": sysconfig.get_platform(),
    "sys_platform": sys.platform,
    "platform_machine": platform.machine(),
    "platform_python_implementation": platform.python_implementation(),
    "platform_system": platform.system(),
    "python_version": ".".join(platform.python_version_tuple()[:2]),
    "python_full_version": platform.python_version(),
    "implementation_name": sys.implementation.name,
}))
`

// requirementsScript prints name and version of every installed distribution.
const requirementsScript = `import json
from importlib import metadata
print(json.dumps({d.metadata["Name"]: d.version for d in metadata.distributions() if d.metadata["Name"]}))
`

// runPython executes script with the given interpreter and returns stdout.
var runPython = func(ctx context.Context, python, script string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, "-c", script)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "run %s: %s", python, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, nil
}

// envValues is an [env.<name>] block, in the order it is written.
type envValues struct {
	OSName                       string `json:"os_name" toml:"os_name" ini:"os_name"`
	PlatformTag                  string `json:"platform_tag" toml:"platform_tag" ini:"platform_tag"`
	SysPlatform                  string `json:"sys_platform" toml:"sys_platform" ini:"sys_platform"`
	PlatformMachine              string `json:"platform_machine" toml:"platform_machine" ini:"platform_machine"`
	PlatformPythonImplementation string `json:"platform_python_implementation" toml:"platform_python_implementation" ini:"platform_python_implementation"`
	PlatformSystem               string `json:"platform_system" toml:"platform_system" ini:"platform_system"`
	PythonVersion                string `json:"python_version" toml:"python_version" ini:"python_version"`
	PythonFullVersion            string `json:"python_full_version" toml:"python_full_version" ini:"python_full_version"`
	ImplementationName           string `json:"implementation_name" toml:"implementation_name" ini:"implementation_name"`
}

// envCommand creates the env command and its subcommands.
func (c *CLI) envCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Generate configuration blocks from a local interpreter",
	}

	cmd.AddCommand(c.envGenerateCommand())
	cmd.AddCommand(c.envRequirementsCommand())

	return cmd
}

func (c *CLI) envGenerateCommand() *cobra.Command {
	var name, python, format string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print an [env.<name>] block for a Python interpreter",
		Example: `  wheelhouse env generate --name linux311 >> wheelhouse.toml
  wheelhouse env generate --python python3.8 --format ini >> morgan.ini`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			out, err := runPython(cmd.Context(), python, envScript)
			if err != nil {
				return err
			}
			var values envValues
			if err := json.Unmarshal(out, &values); err != nil {
				return errors.Wrap(errors.ErrCodeParse, err, "decode %s environment", python)
			}
			return writeEnv(c.Out, format, name, values)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "local", "environment name")
	cmd.Flags().StringVar(&python, "python", "python3", "interpreter to inspect")
	cmd.Flags().StringVar(&format, "format", formatTOML, "output format (toml or ini)")

	return cmd
}

func (c *CLI) envRequirementsCommand() *cobra.Command {
	var mode, python, format string

	cmd := &cobra.Command{
		Use:   "requirements",
		Short: "Print a [requirements] block for the packages installed in an interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			switch mode {
			case ">=", "==", "<=":
			default:
				return errors.New(errors.ErrCodeInvalidInput, "mode must be one of >=, ==, <=, got %q", mode)
			}
			out, err := runPython(cmd.Context(), python, requirementsScript)
			if err != nil {
				return err
			}
			var installed map[string]string
			if err := json.Unmarshal(out, &installed); err != nil {
				return errors.Wrap(errors.ErrCodeParse, err, "decode %s distributions", python)
			}
			return writeRequirements(c.Out, format, pinRequirements(installed, mode))
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", ">=", "versioning mode (>=, == or <=)")
	cmd.Flags().StringVar(&python, "python", "python3", "interpreter to inspect")
	cmd.Flags().StringVar(&format, "format", formatTOML, "output format (toml or ini)")

	return cmd
}

func checkFormat(format string) error {
	if format != formatTOML && format != formatINI {
		return errors.New(errors.ErrCodeInvalidInput, "format must be toml or ini, got %q", format)
	}
	return nil
}

// pinRequirements maps canonical project names to mode+version. When two
// distributions share a canonical name the first in sorted order wins.
func pinRequirements(installed map[string]string, mode string) map[string]string {
	pins := make(map[string]string, len(installed))
	for _, name := range slices.Sorted(maps.Keys(installed)) {
		key := requirement.Canonicalize(name)
		if _, dup := pins[key]; !dup {
			pins[key] = mode + installed[name]
		}
	}
	return pins
}

var bareKeyRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func tomlKey(k string) string {
	if bareKeyRE.MatchString(k) {
		return k
	}
	return strconv.Quote(k)
}

func writeEnv(w io.Writer, format, name string, values envValues) error {
	if format == formatINI {
		f := ini.Empty()
		sec, err := f.NewSection("env." + name)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "environment name %q", name)
		}
		if err := sec.ReflectFrom(&values); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode environment")
		}
		_, err = f.WriteTo(w)
		return err
	}
	if _, err := fmt.Fprintf(w, "[env.%s]\n", tomlKey(name)); err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(values)
}

func writeRequirements(w io.Writer, format string, pins map[string]string) error {
	if format == formatINI {
		f := ini.Empty()
		sec, _ := f.NewSection("requirements")
		for _, name := range slices.Sorted(maps.Keys(pins)) {
			if _, err := sec.NewKey(name, pins[name]); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "encode requirement %s", name)
			}
		}
		_, err := f.WriteTo(w)
		return err
	}
	if _, err := fmt.Fprintln(w, "[requirements]"); err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(pins)
}
