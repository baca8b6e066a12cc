package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

// Load balancer cookies carry literal double quotes that must survive .env parsing.
func TestGodotenvQuoting_CookieReachesJiraConfig(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `JIRA_GCLB='CMv3"quoted"value'`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Registers restoration of the variable once the test ends.
	t.Setenv("JIRA_GCLB", "")
	_ = os.Unsetenv("JIRA_GCLB")

	if err := godotenv.Load(envFile); err != nil {
		t.Fatalf("Error loading env: %v", err)
	}

	cfg := fromEnv(t.TempDir())
	expected := `CMv3"quoted"value`
	if cfg.Jira.GCLB != expected {
		t.Errorf("Expected %s, got %s", expected, cfg.Jira.GCLB)
	}
}
