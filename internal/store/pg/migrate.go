package pg

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	migrations "github.com/dropDatabas3/controltower/migrations/postgres"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// migrationLockID: ID fijo para pg_advisory_lock, derivado del nombre del
// esquema para no chocar con otros procesos.
func migrationLockID() int64 {
	h := sha256.Sum256([]byte("controltower_migration"))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// Migrate aplica los *_up.sql embebidos en orden lexicográfico, bajo
// advisory lock para que varias réplicas no corran el esquema a la vez.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	lockID := migrationLockID()

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var acquired bool
	if err := s.pool.QueryRow(lockCtx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	if !acquired {
		if _, err := s.pool.Exec(lockCtx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
			return 0, fmt.Errorf("wait for migration lock: %w", err)
		}
	}
	defer func() {
		if _, err := s.pool.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			logger.L().Warn("release migration lock failed",
				logger.Component("store/pg"), logger.Err(err))
		}
	}()

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "_up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return applied, err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		applied++
		logger.L().Info("migration applied",
			logger.Component("store/pg"), logger.String("file", name))
	}
	return applied, nil
}
