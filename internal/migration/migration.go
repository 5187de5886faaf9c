package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/postgres/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations/postgres"

// RunMigrations applies the embedded SQL migrations to a Postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&accountdomain.Account{},
		&accountdomain.Preference{},
		&ledgerdomain.UsageRecord{},
		&conversationdomain.Conversation{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for SQLite and MySQL.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(Models()...)
}
