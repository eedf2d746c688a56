package process

import (
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

// Build constructs a ready-to-start command for the spec. The child is
// placed in its own process group so that termination signals reach any
// grandchildren the script spawns.
func Build(s Spec) *exec.Cmd {
	cmd := exec.Command(s.executable(), s.Argv()...)
	cmd.Dir = s.WorkDir()
	if len(s.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), s.Env)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

// MergeEnv merges overrides into a base environment of "KEY=VALUE"
// entries. Overrides win on key conflict; base order is preserved for
// untouched keys.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		keep := true
		for k := range overrides {
			if strings.HasPrefix(kv, k+"=") {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, kv)
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	// Deterministic order keeps command dumps and tests stable.
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
