package toolorch

import "testing"

func TestGetCategory(t *testing.T) {
	cases := map[string]Category{
		"read_file":       CategoryRead,
		"apply_patch":     CategoryEdit,
		"execute_command": CategoryCommand,
		"navigate_browser": CategoryBrowser,
		"mcp_weather_get": CategoryMCP,
		"totally_unknown": CategoryRead,
	}
	for name, want := range cases {
		if got := GetCategory(name); got != want {
			t.Errorf("GetCategory(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsSafeCommand(t *testing.T) {
	if !IsSafeCommand("ls -la /tmp") {
		t.Errorf("expected ls to be a safe command")
	}
	if !IsSafeCommand("git status") {
		t.Errorf("expected git to be a safe command")
	}
	if IsSafeCommand("rm -rf /") {
		t.Errorf("expected rm to not be a safe command")
	}
	if IsSafeCommand("") {
		t.Errorf("expected empty command to not be safe")
	}
}
