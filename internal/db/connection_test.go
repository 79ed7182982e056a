package db_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/db"
	"github.com/nkiryanov/authgate/internal/testutil"
)

func TestConnect(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("session settings", func(t *testing.T) {
		pool, err := db.Connect(t.Context(), pg.DSN)
		require.NoError(t, err)
		defer pool.Close()

		var name, tz string
		err = pool.QueryRow(t.Context(), "SELECT current_setting('application_name'), current_setting('TimeZone')").Scan(&name, &tz)

		require.NoError(t, err)
		require.Equal(t, "authgate", name)
		require.Equal(t, "UTC", tz)
	})

	t.Run("migrate twice is noop", func(t *testing.T) {
		err := db.Migrate(pg.DSN)

		require.NoError(t, err, "schema is already migrated by container start")
	})

	t.Run("migrated schema", func(t *testing.T) {
		var count int
		err := pg.Pool.QueryRow(t.Context(),
			"SELECT count(*) FROM information_schema.tables WHERE table_name IN ('users', 'refresh_tokens')",
		).Scan(&count)

		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("invalid dsn", func(t *testing.T) {
		_, err := db.Connect(t.Context(), "not a dsn://")

		require.Error(t, err)
	})
}
