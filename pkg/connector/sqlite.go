package connector

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/schema"
)

const defaultMaxRowsPerTable = 500

// SQLiteConfig configures the sqlite database connector.
type SQLiteConfig struct {
	Path            string `json:"path"`
	MaxRowsPerTable int    `json:"max_rows_per_table,omitempty"`
}

func (c *SQLiteConfig) validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", component.ErrConfig)
	}
	if c.MaxRowsPerTable <= 0 {
		c.MaxRowsPerTable = defaultMaxRowsPerTable
	}
	return nil
}

// SQLiteConnector reads every user table of a sqlite database and
// emits one content item per cell, addressed table.column.
type SQLiteConnector struct {
	cfg SQLiteConfig
}

// Extract scans all tables up to max_rows_per_table rows each.
func (c *SQLiteConnector) Extract(ctx context.Context, runID string) (*message.Message, error) {
	db, err := sql.Open("sqlite", c.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite connector: open %s: %w", c.cfg.Path, err)
	}
	defer func() { _ = db.Close() }()

	tables, err := listTables(ctx, db)
	if err != nil {
		return nil, err
	}

	var items []ContentItem
	for _, table := range tables {
		tableItems, err := c.extractTable(ctx, db, table)
		if err != nil {
			return nil, err
		}
		items = append(items, tableItems...)
	}

	msg := newStandardInput("sqlite_extraction", c.cfg.Path, items)
	return msg.WithRunID(runID), nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite connector: list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (c *SQLiteConnector) extractTable(ctx context.Context, db *sql.DB, table string) ([]ContentItem, error) {
	// Table names come from sqlite_master, not user input; quoting
	// guards against unusual identifiers.
	query := fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, table, c.cfg.MaxRowsPerTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite connector: read %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var items []ContentItem
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, col := range cols {
			cell := cellString(values[i])
			if cell == "" {
				continue
			}
			items = append(items, ContentItem{
				Content:       cell,
				Source:        table + "." + col,
				ConnectorType: "sqlite",
			})
		}
	}
	return items, rows.Err()
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// SQLiteFactory registers the sqlite connector type.
type SQLiteFactory struct{}

func (SQLiteFactory) Name() string                  { return "sqlite" }
func (SQLiteFactory) InputSchemas() []schema.Schema { return nil }
func (SQLiteFactory) OutputSchemas() []schema.Schema {
	return []schema.Schema{StandardInputSchema}
}
func (SQLiteFactory) ServiceDependencies() []string { return nil }

func (SQLiteFactory) CanCreate(properties map[string]any) error {
	var cfg SQLiteConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return err
	}
	return cfg.validate()
}

func (SQLiteFactory) Create(properties map[string]any, _ *component.Container) (any, error) {
	var cfg SQLiteConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SQLiteConnector{cfg: cfg}, nil
}
