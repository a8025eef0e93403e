package devops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMake_DXTargets verifies developer targets exist in the Makefile and
// reference the expected docker compose invocations and cache pruning.
func TestMake_DXTargets(t *testing.T) {
	b, err := os.ReadFile(filepath.Join(findRepoRoot(t), "Makefile"))
	require.NoError(t, err, "Makefile missing")
	mk := string(b)

	for _, target := range []string{"\nbuild:", "\nup:", "\ndown:", "\nlogs:", "\nrebuild:", "\ntest:", "\nclean:"} {
		assert.Contains(t, mk, target, "Makefile should define a %q target", strings.TrimSpace(target))
	}
	assert.Contains(t, mk, "docker compose up -d")
	assert.Contains(t, mk, "--build", "rebuild target")
	assert.Contains(t, mk, "--force-recreate", "rebuild target")
	assert.Contains(t, mk, "docker compose logs -f")
	assert.Contains(t, mk, "go test ./...")
	assert.Contains(t, mk, "newscheck_http_cache", "clean target should remove the cache volume")
	assert.Contains(t, mk, ".newscheck-cache", "clean target should remove the local cache directory")
}
