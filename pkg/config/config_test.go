package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

const iniConfig = `[env.linux310]
os_name = posix
python_version = 3.10
sys_platform = linux
platform_machine = x86_64

[env.win38]
python_version = 3.8
sys_platform = win32
platform_machine = AMD64
platform_tag = win-amd64

[requirements]
requests = >=2.28
numpy =
    >=1.26
    <1.26,>=1.24
colorama = ; sys_platform == "win32"
six =

[mirror]
all_versions = true
package_types = whl, tar.gz
concurrency = 4
timeout = 90s

[cache]
backend = file
dir = /tmp/wh
ttl = 1h
`

const tomlConfig = `[mirror]
index_url = "https://mirror.example/simple/"
best_wheel_per_environment = true
timeout = "2m"

[cache]
backend = "redis"
redis_url = "redis://localhost:6379/0"

[env.linux310]
python_version = "3.10"
sys_platform = "linux"
platform_machine = "x86_64"

[env.win38]
python_version = "3.8"
sys_platform = "win32"
platform_machine = "AMD64"

[requirements]
requests = ">=2.28"
numpy = [">=1.26", "<1.26,>=1.24"]
colorama = '; sys_platform == "win32"'
six = ""
`

const yamlConfig = `mirror:
  file_concurrency: 3
  package_types: [whl]
env:
  linux310:
    python_version: 3.10
    sys_platform: linux
    platform_machine: x86_64
  win38:
    python_version: "3.8"
    sys_platform: win32
    platform_machine: AMD64
requirements:
  requests: ">=2.28"
  numpy:
    - ">=1.26"
    - "<1.26,>=1.24"
  colorama: '; sys_platform == "win32"'
  six:
`

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var wantRequirements = []string{
	"requests>=2.28",
	"numpy>=1.26",
	"numpy<1.26,>=1.24",
	`colorama; sys_platform == "win32"`,
	"six",
}

func checkCommon(t *testing.T, cfg *Config) {
	t.Helper()
	set, err := cfg.EnvironmentSet()
	if err != nil {
		t.Fatalf("EnvironmentSet: %v", err)
	}
	if got := set.Names(); !reflect.DeepEqual(got, []string{"linux310", "win38"}) {
		t.Errorf("env order = %v", got)
	}
	if got := set.PythonVersions(); !reflect.DeepEqual(got, []string{"3.10", "3.8"}) {
		t.Errorf("python versions = %v", got)
	}

	reqs, err := cfg.ParsedRequirements()
	if err != nil {
		t.Fatalf("ParsedRequirements: %v", err)
	}
	var got []string
	for _, r := range reqs {
		got = append(got, r.String())
	}
	if len(got) != len(wantRequirements) {
		t.Fatalf("requirements = %q", got)
	}
	for i, r := range reqs {
		if r.Name != []string{"requests", "numpy", "numpy", "colorama", "six"}[i] {
			t.Errorf("requirement %d = %s", i, got[i])
		}
	}
	if reqs[3].Marker == nil {
		t.Error("colorama marker lost")
	}
}

func TestLoadINI(t *testing.T) {
	cfg, err := Load(write(t, "morgan.ini", iniConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkCommon(t, cfg)
	if !cfg.Mirror.AllVersions || cfg.Mirror.Concurrency != 4 || cfg.Mirror.Timeout != 90*time.Second {
		t.Errorf("mirror = %+v", cfg.Mirror)
	}
	if !reflect.DeepEqual(cfg.Mirror.PackageTypes, []string{"whl", "tar.gz"}) {
		t.Errorf("package types = %v", cfg.Mirror.PackageTypes)
	}
	if cfg.Cache.Backend != BackendFile || cfg.Cache.Dir != "/tmp/wh" || cfg.Cache.TTL != time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Environments[0].Values["os_name"] != "posix" {
		t.Errorf("extra env keys dropped: %v", cfg.Environments[0].Values)
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(write(t, "wheelhouse.toml", tomlConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkCommon(t, cfg)
	if cfg.Mirror.IndexURL != "https://mirror.example/simple/" || !cfg.Mirror.BestWheelPerEnvironment || cfg.Mirror.Timeout != 2*time.Minute {
		t.Errorf("mirror = %+v", cfg.Mirror)
	}
	if cfg.Mirror.Concurrency != 1 {
		t.Errorf("default concurrency = %d", cfg.Mirror.Concurrency)
	}
	if cfg.Cache.Backend != BackendRedis || cfg.Cache.RedisURL == "" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(write(t, "wheelhouse.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkCommon(t, cfg)
	if cfg.Mirror.FileConcurrency != 3 || !reflect.DeepEqual(cfg.Mirror.PackageTypes, []string{"whl"}) {
		t.Errorf("mirror = %+v", cfg.Mirror)
	}
	if cfg.Cache.Backend != BackendMemory {
		t.Errorf("default backend = %s", cfg.Cache.Backend)
	}
	opts, err := cfg.SelectorOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Extensions.MatchString("pkg-1.0.tar.gz") || !opts.Extensions.MatchString("pkg-1.0-py3-none-any.whl") {
		t.Error("package_types not applied to selector")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"no-env.ini":     "[requirements]\nrequests = >=2\n",
		"bad.json":       "{}",
		"backend.toml":   "[cache]\nbackend = \"s3\"\n[env.a]\npython_version = \"3.10\"\n",
		"redis.toml":     "[cache]\nbackend = \"redis\"\n[env.a]\npython_version = \"3.10\"\n",
		"types.yaml":     "mirror:\n  package_types: [egg]\nenv:\n  a:\n    python_version: '3.10'\n",
		"unknown.toml":   "[mirror]\nworkers = 3\n[env.a]\npython_version = \"3.10\"\n",
		"badreq.yaml":    "env:\n  a:\n    python_version: '3.10'\nrequirements:\n  numpy: {min: 1}\n",
		"envscalar.yaml": "env:\n  a:\n    python_version: [3]\n",
		"timeout.ini":    "[env.a]\npython_version = 3.10\n[mirror]\ntimeout = soon\n",
		"url.toml":       "[mirror]\nindex_url = \"ftp://mirror.example/\"\n[env.a]\npython_version = \"3.10\"\n",
	}
	for name, body := range tests {
		if _, err := Load(write(t, name, body)); !errors.Is(err, errors.ErrCodeInvalidConfig) {
			t.Errorf("%s: err = %v, want INVALID_CONFIG", name, err)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestEnvironmentSetRequiresKeys(t *testing.T) {
	cfg, err := Load(write(t, "partial.toml", "[env.a]\npython_version = \"3.10\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.EnvironmentSet(); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestBadRequirement(t *testing.T) {
	cfg, err := Load(write(t, "bad.ini", "[env.a]\npython_version = 3.10\n[requirements]\nrequests = >>2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.ParsedRequirements(); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	if _, err := Find(dir); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("empty dir: err = %v", err)
	}
	os.WriteFile(filepath.Join(dir, "morgan.ini"), nil, 0o644)
	os.WriteFile(filepath.Join(dir, "wheelhouse.yaml"), nil, 0o644)
	got, err := Find(dir)
	if err != nil || filepath.Base(got) != "wheelhouse.yaml" {
		t.Errorf("Find = %s, %v", got, err)
	}
}
