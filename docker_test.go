package blogapp_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBuildsBlogappBinary(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/blogapp") {
		t.Error("Dockerfile should build ./cmd/blogapp")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/usr/local/bin/blogapp"]`) {
		t.Error("Dockerfile should use the blogapp binary as ENTRYPOINT")
	}
	// distrolessにはシェルが無いため、ヘルスチェックはサブコマンドで行う
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should use the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, want := range []string{"api:", "worker:", "migrate:", "db:", "redis:", "postgres:", `command: ["worker"]`, `command: ["migrate"]`} {
		if !strings.Contains(content, want) {
			t.Errorf("docker-compose.yml should contain %q", want)
		}
	}
}

func TestDockerComposeRequiresSecrets(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// 秘密鍵にデフォルト値を与えないこと
	for _, key := range []string{"JWT_SECRET", "SESSION_SECRET"} {
		if !strings.Contains(content, "${"+key+":?") {
			t.Errorf("docker-compose.yml should require %s without a default", key)
		}
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true) for the data stores")
	}
	if !strings.Contains(content, "external:") {
		t.Error("docker-compose.yml should define an external network for the api")
	}
}
