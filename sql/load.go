package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed identities.sql
var identitiesSQL string

//go:embed mappings.sql
var mappingsSQL string

//go:embed metadata.sql
var metadataSQL string

// Table names for verification
var Tables = []string{
	"identities",
	"component_mappings",
	"metadata",
}

// LoadIdentitiesSql creates the identities table and its indexes.
// If force is false and the table already exists, it does nothing.
func LoadIdentitiesSql(db *sql.DB, driver string, force bool) error {
	return loadTable(db, driver, "identities", identitiesSQL, force)
}

// LoadMappingsSql creates the component_mappings table and its indexes.
func LoadMappingsSql(db *sql.DB, driver string, force bool) error {
	return loadTable(db, driver, "component_mappings", mappingsSQL, force)
}

// LoadMetadataSql creates the metadata key/value table.
func LoadMetadataSql(db *sql.DB, driver string, force bool) error {
	return loadTable(db, driver, "metadata", metadataSQL, force)
}

// LoadAllSql creates all store tables.
func LoadAllSql(db *sql.DB, driver string, force bool) error {
	if err := LoadMetadataSql(db, driver, force); err != nil {
		return err
	}

	if err := LoadIdentitiesSql(db, driver, force); err != nil {
		return err
	}

	if err := LoadMappingsSql(db, driver, force); err != nil {
		return err
	}

	return nil
}

func loadTable(db *sql.DB, driver string, table string, schema string, force bool) error {
	if !force {
		exist, err := checkTable(db, driver, table)
		if err != nil {
			return fmt.Errorf("error checking existing table %s: %w", table, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("error executing %s schema SQL: %w", table, err)
	}

	exist, err := checkTable(db, driver, table)
	if err != nil {
		return fmt.Errorf("error checking existing table %s: %w", table, err)
	}
	if !exist {
		return fmt.Errorf("table %s was not created", table)
	}

	log.Printf("SQL table %s loaded successfully", table)
	return nil
}

// checkTable verifies that a table exists, using the catalog of the
// active driver.
func checkTable(db *sql.DB, driver string, table string) (bool, error) {
	var exists bool
	var err error
	switch driver {
	case "postgres":
		err = db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1);`,
			table,
		).Scan(&exists)
	default:
		err = db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?);`,
			table,
		).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("error checking existence of table %s: %w", table, err)
	}
	return exists, nil
}
