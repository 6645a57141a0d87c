package cdp

import "testing"

func TestComboModifiers(t *testing.T) {
	cases := []struct {
		combo   string
		wantMod int
		wantKey string
		wantErr bool
	}{
		{"cmd+b", modMeta, "b", false},
		{"ctrl+shift+a", modCtrl | modShift, "a", false},
		{"alt+Tab", modAlt, "Tab", false},
		{"ctrl+alt", 0, "", true},
		{"a+b", 0, "", true},
	}
	for _, c := range cases {
		t.Run(c.combo, func(t *testing.T) {
			mods, key, err := comboModifiers(splitPlus(c.combo))
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", c.combo)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mods != c.wantMod {
				t.Errorf("mods = %d, want %d", mods, c.wantMod)
			}
			if key != c.wantKey {
				t.Errorf("key = %q, want %q", key, c.wantKey)
			}
		})
	}
}

func splitPlus(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '+' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func TestNamedKeysCoversSpecFlags(t *testing.T) {
	want := []string{
		"--enter", "--tab", "--escape", "--backspace", "--delete",
		"--up", "--down", "--left", "--right", "--home", "--end", "--space",
	}
	for _, flag := range want {
		if _, ok := namedKeys[flag]; !ok {
			t.Errorf("missing named key mapping for %q", flag)
		}
	}
}
