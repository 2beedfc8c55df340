package oracle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrope/internal/thermo"
)

func TestTableWatcherReloadsOnChange(t *testing.T) {
	if testing.Short() {
		t.Skip("debounce timing test")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "steam.csv")
	require.NoError(t, os.WriteFile(path, embeddedTable, 0644))

	table, err := NewTableFromFile(path)
	require.NoError(t, err)

	watcher, err := NewTableWatcher(table)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	// Shift the 150 degC saturation pressure and rewrite the file.
	modified := strings.Replace(string(embeddedTable), "150,4.7616", "150,4.8000", 1)
	require.NoError(t, os.WriteFile(path, []byte(modified), 0644))

	// Debounce is 500ms on a 100ms tick; poll until the reload lands.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if watcher.Stats().Reloads > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	stats := watcher.Stats()
	require.Greater(t, stats.Reloads, 0, "watcher never reloaded (events=%d)", stats.Events)

	env, err := table.SaturationAt(context.Background(), prop(thermo.QuantityTemperature, 150))
	require.NoError(t, err)
	assert.InDelta(t, 4.8, env.Psat, 1e-9)
}

func TestTableWatcherIgnoresOtherFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("debounce timing test")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "steam.csv")
	require.NoError(t, os.WriteFile(path, embeddedTable, 0644))

	table, err := NewTableFromFile(path)
	require.NoError(t, err)

	watcher, err := NewTableWatcher(table)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, 0, watcher.Stats().Events)
}
