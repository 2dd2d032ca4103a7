package version

import (
	"strings"
	"testing"
)

func TestString_Dirty(t *testing.T) {
	origVersion, origDirty := Version, Dirty
	defer func() { Version, Dirty = origVersion, origDirty }()

	Version, Dirty = "1.2.0", "true"
	if got := String(); got != "1.2.0-dirty" {
		t.Errorf("String() = %q, want %q", got, "1.2.0-dirty")
	}
	if got := UserAgent(); got != "mediacrawl/1.2.0-dirty" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestFull_ContainsFields(t *testing.T) {
	out := Full()
	for _, want := range []string{"mediacrawl", "Commit:", "Go version:", "OS/Arch:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Full() missing %q:\n%s", want, out)
		}
	}
}
