// Package storagetest wires go-sqlmock behind storage.Querier for repository tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/dal/mysql"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

// NewMock returns a Querier rendering statements for dialect on top of a
// sqlmock connection. Expectations are verified on cleanup.
func NewMock(t *testing.T, dialect storage.Dialect) (storage.Querier, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn, err := mysql.NewFromDB(db).Acquire(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		conn.Release()
		_ = db.Close()
	})

	return storage.Bind(conn, dialect), mock
}
