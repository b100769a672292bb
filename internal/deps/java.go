package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveJava returns the java binary the classifier will run. An explicit
// path is used as configured. The bare name "java" prefers $JAVA_HOME/bin/java
// when that file is executable and otherwise resolves from PATH.
func ResolveJava(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		configured = "java"
	}
	if configured != "java" {
		return configured
	}
	if home := strings.TrimSpace(os.Getenv("JAVA_HOME")); home != "" {
		candidate := filepath.Join(home, "bin", "java")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode().Perm()&0o111 != 0 {
			return candidate
		}
	}
	if resolved, err := exec.LookPath(configured); err == nil {
		return resolved
	}
	return configured
}
