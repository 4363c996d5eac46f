package env

import (
	"reflect"
	"testing"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
)

func testSet(t *testing.T) *Set {
	t.Helper()
	return MustNewSet(
		MustNew("linux310", map[string]string{
			"python_version":   "3.10",
			"sys_platform":     "linux",
			"platform_machine": "x86_64",
		}),
		MustNew("win38", map[string]string{
			"python_version":   "3.8",
			"sys_platform":     "win32",
			"platform_machine": "AMD64",
			"platform_tag":     "win-amd64",
		}),
	)
}

func TestNewRequiresKeys(t *testing.T) {
	_, err := New("broken", map[string]string{"python_version": "3.10", "sys_platform": "linux"})
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("New without platform_machine: err = %v, want INVALID_CONFIG", err)
	}
}

func TestDefaults(t *testing.T) {
	e := MustNew("e", map[string]string{"python_version": "3.10", "sys_platform": "linux", "platform_machine": "x86_64"})
	for _, key := range []string{"platform_release", "platform_version", "implementation_version", "extra"} {
		if _, ok := e.Values()[key]; !ok {
			t.Errorf("default %s not set", key)
		}
	}
}

func TestWithDoesNotMutate(t *testing.T) {
	e := MustNew("e", map[string]string{"python_version": "3.10", "sys_platform": "linux", "platform_machine": "x86_64"})
	e2 := e.With("extra", "test")
	if e.Get("extra") != "" {
		t.Errorf("original mutated: extra = %q", e.Get("extra"))
	}
	if e2.Get("extra") != "test" {
		t.Errorf("copy extra = %q, want test", e2.Get("extra"))
	}
}

func TestMatchesPlatform(t *testing.T) {
	s := testSet(t)
	linux, win := s.All()[0], s.All()[1]

	tests := []struct {
		env  Environment
		tag  string
		want bool
	}{
		{linux, "any", true},
		{linux, "manylinux_2_17_x86_64", true},
		{linux, "manylinux2014_x86_64", true},
		{linux, "linux_x86_64", true},
		{linux, "musllinux_1_1_x86_64", true},
		{linux, "manylinux_2_17_aarch64", false},
		{linux, "win_amd64", false},
		{win, "win_amd64", true},
		{win, "win32", false},
		{win, "macosx_11_0_arm64", false},
	}

	for _, tt := range tests {
		if got := tt.env.MatchesPlatform(tt.tag); got != tt.want {
			t.Errorf("%s.MatchesPlatform(%q) = %v, want %v", tt.env.Name(), tt.tag, got, tt.want)
		}
	}
}

func TestSetAccessors(t *testing.T) {
	s := testSet(t)
	if got := s.Names(); !reflect.DeepEqual(got, []string{"linux310", "win38"}) {
		t.Errorf("Names = %v", got)
	}
	if got := s.PythonVersions(); !reflect.DeepEqual(got, []string{"3.10", "3.8"}) {
		t.Errorf("PythonVersions = %v", got)
	}
	if _, err := NewSet(s.All()[0], s.All()[0]); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("duplicate names should fail, got %v", err)
	}
}

func TestMatchesMarker(t *testing.T) {
	s := testSet(t)
	tests := []struct {
		marker string
		extras []string
		want   bool
	}{
		{`sys_platform == "win32"`, nil, true},
		{`sys_platform == "darwin"`, nil, false},
		{`python_version >= "3.9" and sys_platform == "win32"`, nil, false},
		{`python_version >= "3.9"`, nil, true},
		{`extra == "socks"`, nil, false},
		{`extra == "socks"`, []string{"socks"}, true},
		{`extra == "socks"`, []string{"web", "socks"}, true},
	}

	for _, tt := range tests {
		if got := s.MatchesMarker(marker.MustParse(tt.marker), tt.extras); got != tt.want {
			t.Errorf("MatchesMarker(%q, %v) = %v, want %v", tt.marker, tt.extras, got, tt.want)
		}
	}
	if !s.MatchesMarker(nil, nil) {
		t.Error("nil marker should match")
	}
}

func TestJoinExtras(t *testing.T) {
	if got := JoinExtras([]string{"web", "socks"}); got != "socks,web" {
		t.Errorf("JoinExtras = %q", got)
	}
}
