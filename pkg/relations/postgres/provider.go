// Package postgres discovers relation facts from a live PostgreSQL
// database. Primary keys come from the information schema; one-to-one
// detection uses pg_index so unique indexes created by ORMs are seen too.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querypatrol/pkg/logging"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
)

// Config contains the options a discovery pool needs.
type Config struct {
	ConnString string
	Schema     string // defaults to "public"
	MaxConns   int32  // 0 keeps the pool default
}

// Provider reads key metadata over a pgx pool and assembles relation
// facts from it.
type Provider struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

// New opens a discovery pool and verifies the connection. If logger is
// nil, a no-op logger is used.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("relations.postgres")

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("database unreachable",
			zap.String("dsn", logging.SanitizeDSN(cfg.ConnString)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}

	logger.Debug("connected for schema discovery",
		zap.String("dsn", logging.SanitizeDSN(cfg.ConnString)),
		zap.String("schema", schema))

	return &Provider{pool: pool, schema: schema, logger: logger}, nil
}

// Close releases the discovery pool.
func (p *Provider) Close() {
	p.pool.Close()
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
	const query = `
		SELECT
			kcu.table_schema,
			kcu.table_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		ORDER BY kcu.table_name, kcu.ordinal_position
	`

	rows, err := p.pool.Query(ctx, query, p.schema)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string][]string)
	for rows.Next() {
		var schemaName, tableName, columnName string
		if err := rows.Scan(&schemaName, &tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		name := p.tableName(schemaName, tableName)
		pks[name] = append(pks[name], columnName)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}

	return pks, nil
}

// uniqueColumns returns the set of single-column unique or primary key
// indexes, keyed "table.column". pg_index catches unique indexes that
// never appear as constraints in the information schema.
func (p *Provider) uniqueColumns(ctx context.Context) (map[string]struct{}, error) {
	const query = `
		SELECT t.relname, a.attname
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE (ix.indisunique OR ix.indisprimary)
		  AND n.nspname = $1
		  AND array_length(ix.indkey, 1) = 1
	`

	rows, err := p.pool.Query(ctx, query, p.schema)
	if err != nil {
		return nil, fmt.Errorf("query unique columns: %w", err)
	}
	defer rows.Close()

	unique := make(map[string]struct{})
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan unique column: %w", err)
		}
		unique[columnKey(tableName, columnName)] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unique columns: %w", err)
	}

	return unique, nil
}

func (p *Provider) foreignKeys(ctx context.Context, unique map[string]struct{}) ([]relations.ForeignKey, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema as source_schema,
			kcu.table_name as source_table,
			kcu.column_name as source_column,
			ccu.table_schema as target_schema,
			ccu.table_name as target_table,
			ccu.column_name as target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		ORDER BY kcu.table_name, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := p.pool.Query(ctx, query, p.schema)
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
			return nil, fmt.Errorf("scan foreign key: %w", err)
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
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
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
