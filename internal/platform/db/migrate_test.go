package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/app?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/app?sslmode=disable"))
	assert.Equal(t, "pgx5://h/app", migrateURL("postgresql://h/app"))
	assert.Equal(t, "pgx5://h/app", migrateURL("pgx5://h/app"))
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"})
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "user_roles_role_id_fkey"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.Equal(t, "roles_name_key", ConstraintName(unique))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.Equal(t, "", ConstraintName(errors.New("plain")))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)
}
