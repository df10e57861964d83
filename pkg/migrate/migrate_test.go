package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_orders_and_tickets.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_tickets_code ON tickets (code)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_stripe_session",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (status IN ('PENDING', 'PAID'))",
		"DROP TABLE IF EXISTS tickets",
	} {
		assert.True(t, strings.Contains(content, sub), "missing %q", sub)
	}
}

func TestEventsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_events.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CHECK (ticket_price_cents >= 0)",
		"CHECK (allocation_percent BETWEEN 1 AND 100)",
		"FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE",
		"FOREIGN KEY (charity_id) REFERENCES charities(id) ON DELETE RESTRICT",
	} {
		assert.True(t, strings.Contains(content, sub), "missing %q", sub)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Ticket Redemption!")
	require.NoError(t, err)
	assert.Regexp(t, `\d{14}_add_ticket_redemption\.sql$`, path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}
