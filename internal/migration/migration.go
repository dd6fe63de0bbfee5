package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	programdomain "github.com/smallbiznis/partnerflow/internal/program/domain"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists the tables AutoMigrate creates on dialects without versioned SQL.
func Models() []any {
	return []any{
		&programdomain.Program{},
		&groupdomain.PartnerGroup{},
		&partnerdomain.Partner{},
		&auditdomain.AuditLog{},
	}
}

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations; MySQL and SQLite fall back to AutoMigrate of the models.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if !db.IsPostgres(conn) {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
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

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
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
	// migrator.Close would close the shared *sql.DB

	return nil
}
