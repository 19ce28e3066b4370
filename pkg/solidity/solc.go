package solidity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"github.com/tidwall/gjson"

	"github.com/solfixes/solfixes/pkg/cmdutil"
)

// versionEnv is the variable the solc-select shim reads to pick a compiler
// release. Slither and Oyente honor the same variable.
const versionEnv = "SOLC_VERSION"

// Toolchain compiles Solidity sources through the solc-select shim.
type Toolchain struct {
	solc       string
	solcSelect string

	mu        sync.Mutex
	installed map[string]struct{}
}

func NewToolchain(solcBinary, selectBinary string) *Toolchain {
	return &Toolchain{solc: solcBinary, solcSelect: selectBinary}
}

// CompileOptions shape one compiler run. Remaps resolve vendored imports,
// the optimizer settings must match the deployed build for bytecode
// comparison to work.
type CompileOptions struct {
	Version      string
	Remaps       []string
	Optimize     bool
	OptimizeRuns int `default:"200"`
}

// InstalledVersions lists the compiler releases solc-select has available.
func (t *Toolchain) InstalledVersions(ctx context.Context) (map[string]struct{}, error) {
	stdout, stderr, err := cmdutil.Run(ctx, "", nil, t.solcSelect, "versions")
	if err != nil {
		return nil, fmt.Errorf("solc-select versions: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	versions := make(map[string]struct{})
	for _, line := range strings.Split(string(stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			versions[fields[0]] = struct{}{}
		}
	}
	return versions, nil
}

// EnsureVersion installs a compiler release when it is not yet available.
// Safe for concurrent use across mining workers.
func (t *Toolchain) EnsureVersion(ctx context.Context, version string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.installed == nil {
		installed, err := t.InstalledVersions(ctx)
		if err != nil {
			return err
		}
		t.installed = installed
	}
	if _, ok := t.installed[version]; ok {
		return nil
	}

	_, stderr, err := cmdutil.Run(ctx, "", nil, t.solcSelect, "install", version)
	if err != nil {
		return fmt.Errorf("solc-select install %s: %w: %s", version, err, strings.TrimSpace(string(stderr)))
	}
	t.installed[version] = struct{}{}
	return nil
}

// CompileRuntime compiles one source file and returns the hex runtime
// bytecode of the named contract.
func (t *Toolchain) CompileRuntime(ctx context.Context, dir, file, contract string, opts CompileOptions) (string, error) {
	if err := defaults.Set(&opts); err != nil {
		return "", err
	}
	if err := t.EnsureVersion(ctx, opts.Version); err != nil {
		return "", err
	}

	args := []string{"--combined-json", "bin-runtime"}
	if opts.Optimize {
		args = append(args, "--optimize", "--optimize-runs", strconv.Itoa(opts.OptimizeRuns))
	}
	args = append(args, opts.Remaps...)
	args = append(args, file)

	stdout, stderr, err := cmdutil.Run(ctx, dir, []string{versionEnv + "=" + opts.Version}, t.solc, args...)
	if err != nil {
		return "", fmt.Errorf("solc %s: %w: %s", file, err, strings.TrimSpace(string(stderr)))
	}

	suffix := ":" + contract
	var bytecode string
	gjson.GetBytes(stdout, "contracts").ForEach(func(key, value gjson.Result) bool {
		if strings.HasSuffix(key.String(), suffix) {
			bytecode = value.Get("bin-runtime").String()
			return false
		}
		return true
	})
	if bytecode == "" {
		return "", fmt.Errorf("contract %s missing from compiler output for %s", contract, file)
	}
	return bytecode, nil
}

// AST parses one source file and returns its compact AST.
func (t *Toolchain) AST(ctx context.Context, dir, file, version string, remaps []string) (gjson.Result, error) {
	if err := t.EnsureVersion(ctx, version); err != nil {
		return gjson.Result{}, err
	}

	args := []string{"--ast-compact-json"}
	args = append(args, remaps...)
	args = append(args, file)

	stdout, stderr, err := cmdutil.Run(ctx, dir, []string{versionEnv + "=" + version}, t.solc, args...)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("solc --ast-compact-json %s: %w: %s", file, err, strings.TrimSpace(string(stderr)))
	}

	section, ok := astSection(string(stdout), file)
	if !ok {
		return gjson.Result{}, fmt.Errorf("no AST section for %s in compiler output", file)
	}
	ast := gjson.Parse(section)
	if !ast.IsObject() {
		return gjson.Result{}, fmt.Errorf("malformed AST for %s", file)
	}
	return ast, nil
}

// astSection extracts one source's JSON from multi-file compiler output,
// where sections are introduced by ======= path ======= headers.
func astSection(out, path string) (string, bool) {
	marker := "======= " + path + " ======="
	idx := strings.Index(out, marker)
	if idx < 0 {
		return "", false
	}

	section := out[idx+len(marker):]
	if next := strings.Index(section, "======="); next >= 0 {
		section = section[:next]
	}
	section = strings.TrimSpace(section)
	return section, section != ""
}
