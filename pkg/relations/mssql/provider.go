// Package mssql discovers relation facts from a live SQL Server database
// using the sys catalog views.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/querypatrol/pkg/logging"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
)

// Config contains the options a discovery connection needs.
type Config struct {
	ConnString string
	Schema     string // defaults to "dbo"
}

// Provider reads key metadata over database/sql and assembles relation
// facts from it.
type Provider struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

// New opens a discovery connection and verifies it. If logger is nil, a
// no-op logger is used.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("relations.mssql")

	db, err := sql.Open("sqlserver", cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("database unreachable",
			zap.String("dsn", logging.SanitizeDSN(cfg.ConnString)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "dbo"
	}

	logger.Debug("connected for schema discovery",
		zap.String("dsn", logging.SanitizeDSN(cfg.ConnString)),
		zap.String("schema", schema))

	return &Provider{db: db, schema: schema, logger: logger}, nil
}

// Close releases the discovery connection.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Discover reads primary keys, unique columns, and foreign keys for the
// configured schema and assembles them into relation facts.
func (p *Provider) Discover(ctx context.Context) (*relations.Facts, error) {
	pks, err := p.primaryKeys(ctx)
	if err != nil {
		return nil, err
	}
	unique, err := p.uniqueColumns(ctx)
	if err != nil {
		return nil, err
	}
	fks, err := p.foreignKeys(ctx, unique)
	if err != nil {
		return nil, err
	}

	facts := relations.BuildFacts(pks, fks)
	p.logger.Info("discovered relation facts",
		zap.String("schema", p.schema),
		zap.Int("tables", facts.TableCount()),
		zap.Int("associations", facts.AssociationCount()))
	return facts, nil
}

func (p *Provider) primaryKeys(ctx context.Context) (map[string][]string, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    c.name AS column_name
	FROM sys.tables t
	INNER JOIN sys.indexes i ON i.object_id = t.object_id AND i.is_primary_key = 1
	INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	INNER JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE t.is_ms_shipped = 0
	  AND SCHEMA_NAME(t.schema_id) = @schema
	ORDER BY t.name, ic.key_ordinal
	`

	rows, err := p.db.QueryContext(ctx, query, sql.Named("schema", p.schema))
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string][]string)
	for rows.Next() {
		var schemaName, tableName, columnName string
		if err := rows.Scan(&schemaName, &tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan primary key row: %w", err)
		}
		name := p.tableName(schemaName, tableName)
		pks[name] = append(pks[name], columnName)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary key rows: %w", err)
	}

	return pks, nil
}

// uniqueColumns returns the set of single-column unique or primary key
// indexes, keyed "table.column". Indexes with a second key column are
// excluded; included columns have key_ordinal 0 and do not count.
func (p *Provider) uniqueColumns(ctx context.Context) (map[string]struct{}, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    t.name AS table_name,
	    c.name AS column_name
	FROM sys.indexes i
	INNER JOIN sys.tables t ON t.object_id = i.object_id
	INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	INNER JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE (i.is_unique = 1 OR i.is_primary_key = 1)
	  AND ic.key_ordinal = 1
	  AND t.is_ms_shipped = 0
	  AND SCHEMA_NAME(t.schema_id) = @schema
	  AND NOT EXISTS (
	      SELECT 1 FROM sys.index_columns ic2
	      WHERE ic2.object_id = i.object_id
	        AND ic2.index_id = i.index_id
	        AND ic2.key_ordinal = 2
	  )
	`

	rows, err := p.db.QueryContext(ctx, query, sql.Named("schema", p.schema))
	if err != nil {
		return nil, fmt.Errorf("query unique columns: %w", err)
	}
	defer rows.Close()

	unique := make(map[string]struct{})
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan unique column row: %w", err)
		}
		unique[columnKey(tableName, columnName)] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unique column rows: %w", err)
	}

	return unique, nil
}

func (p *Provider) foreignKeys(ctx context.Context, unique map[string]struct{}) ([]relations.ForeignKey, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    fk.name AS constraint_name,
	    SCHEMA_NAME(fk.schema_id) AS source_schema,
	    OBJECT_NAME(fk.parent_object_id) AS source_table,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS source_column,
	    SCHEMA_NAME(rt.schema_id) AS target_schema,
	    OBJECT_NAME(fk.referenced_object_id) AS target_table,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS target_column
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	INNER JOIN sys.tables rt ON fk.referenced_object_id = rt.object_id
	WHERE fk.is_ms_shipped = 0
	  AND SCHEMA_NAME(fk.schema_id) = @schema
	ORDER BY source_table, fk.name, fkc.constraint_column_id
	`

	rows, err := p.db.QueryContext(ctx, query, sql.Named("schema", p.schema))
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []relations.ForeignKey
	for rows.Next() {
		var constraintName string
		var sourceSchema, sourceTable, sourceColumn string
		var targetSchema, targetTable, targetColumn string
		if err := rows.Scan(&constraintName, &sourceSchema, &sourceTable, &sourceColumn,
			&targetSchema, &targetTable, &targetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}

		_, isUnique := unique[columnKey(sourceTable, sourceColumn)]
		fks = append(fks, relations.ForeignKey{
			ConstraintName: constraintName,
			Table:          p.tableName(sourceSchema, sourceTable),
			Column:         sourceColumn,
			RefTable:       p.tableName(targetSchema, targetTable),
			RefColumn:      targetColumn,
			Unique:         isUnique,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return fks, nil
}

// tableName qualifies a table only when it lives outside the configured
// schema, matching how queries in application logs usually spell names.
func (p *Provider) tableName(schemaName, tableName string) string {
	if schemaName == "" || schemaName == p.schema {
		return tableName
	}
	return schemaName + "." + tableName
}

func columnKey(tableName, columnName string) string {
	return strings.ToLower(tableName) + "." + strings.ToLower(columnName)
}
