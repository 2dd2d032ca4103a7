package commands

import "testing"

func TestFlagKeys_Registered(t *testing.T) {
	flags := crawlCmd.Flags()
	for flag, key := range flagKeys {
		if flags.Lookup(flag) == nil {
			t.Errorf("flag --%s bound to %q is not registered", flag, key)
		}
	}
	for _, flag := range []string{"otlp-endpoint", "otlp-protocol"} {
		if _, ok := flagKeys[flag]; !ok {
			t.Errorf("flag --%s is not bound to a config key", flag)
		}
	}
}
