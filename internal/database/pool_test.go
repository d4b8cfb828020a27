package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

func setupMockPool(t *testing.T) (*PoolManager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	pm, err := NewPoolManager(gormDB, PoolConfig{Driver: "postgres", MaxOpenConns: 5, MaxIdleConns: 2}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return pm, mock
}

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestNewPoolManager_AppliesLimits(t *testing.T) {
	pm, _ := setupMockPool(t)
	assert.Equal(t, 5, pm.Stats().MaxOpenConnections)
	assert.NotNil(t, pm.DB())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(PoolConfig{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpen_SQLiteIsSingleConnection(t *testing.T) {
	pm, err := Open(PoolConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "pool.db"), MaxOpenConns: 20}, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, 1, pm.Stats().MaxOpenConnections)
	assert.NoError(t, pm.Ping(context.Background()))
}

func TestPoolManager_Ping(t *testing.T) {
	pm, mock := setupMockPool(t)
	ctx := context.Background()

	mock.ExpectPing()
	assert.NoError(t, pm.Ping(ctx))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, pm.Ping(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	pm, mock := setupMockPool(t)

	mock.ExpectClose()
	require.NoError(t, pm.Close())
	assert.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// 🧪 事务测试
// =============================================================================

func TestPoolManager_WithTransaction(t *testing.T) {
	pm, mock := setupMockPool(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := pm.WithTransaction(context.Background(), func(*gorm.DB) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	pm, mock := setupMockPool(t)

	// 首次死锁，第二次成功
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	pm, mock := setupMockPool(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		attempts++
		return errors.New("unique constraint violated")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_Exhausted(t *testing.T) {
	pm, mock := setupMockPool(t)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := pm.WithTransactionRetry(context.Background(), 2, func(*gorm.DB) error {
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("pq: deadlock detected"), true},
		{errors.New("could not serialize access: serialization failure"), true},
		{errors.New("SQLSTATE 40001"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("syntax error at or near"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}
