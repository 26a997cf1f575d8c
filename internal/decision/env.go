package decision

import "strings"

// EnvFromEnviron converts an environ slice (["KEY=VALUE", ...]) into an Env.
// Values may contain "=", entries without one are skipped.
func EnvFromEnviron(environ []string) Env {
	env := make(Env, len(environ))
	for _, entry := range environ {
		idx := strings.Index(entry, "=")
		if idx == -1 {
			continue
		}
		env[entry[:idx]] = entry[idx+1:]
	}
	return env
}

// Overlay returns a new Env holding base with override's keys on top. Keys
// are compared case-insensitively so an override of "debug" replaces "DEBUG".
func Overlay(base, override Env) Env {
	out := make(Env, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		for existing := range out {
			if strings.EqualFold(existing, k) {
				delete(out, existing)
			}
		}
		out[k] = v
	}
	return out
}

// String returns the value of key as a string, or "" when absent or not a
// scalar.
func (e Env) String(key string) string {
	v, ok := Lookup(e, key)
	if !ok {
		return ""
	}
	s, _ := scalarString(v)
	return s
}
