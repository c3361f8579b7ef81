package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/payload"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// RecordsTable holds one row per stored record
const RecordsTable = "trident_records"

// SQLStore keeps raw records as JSON documents in a SQL table keyed by
// (model, id). Id lookups run in SQL; other query keys are matched after
// decoding.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	table    string
	logger   *zap.Logger
}

// OpenSQL connects to a database and creates the records table if needed
func OpenSQL(ctx context.Context, driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s session requires a dsn", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// every connection to an in-memory database is a different database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	store := NewSQLStore(db, driver, logger)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database. driver selects the SQL dialect.
func NewSQLStore(db *sql.DB, driver string, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:       db,
		postgres: driver == DriverPostgres || driver == DriverPgx,
		table:    pq.QuoteIdentifier(RecordsTable),
		logger:   logger,
	}
}

// Migrate creates the records table
func (s *SQLStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	model TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (model, id)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", RecordsTable, err)
	}
	return nil
}

// Find returns the raw record of model with id, or nil
func (s *SQLStore) Find(ctx context.Context, model string, id interface{}) (interface{}, error) {
	query := s.rebind(fmt.Sprintf("SELECT data FROM %s WHERE model = ? AND id = ?", s.table))

	var data string
	err := s.db.QueryRowContext(ctx, query, model, idKey(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %v: %w", model, id, err)
	}
	return decodeRow(data)
}

// Where returns the raw records of model matching query, ordered by id
func (s *SQLStore) Where(ctx context.Context, model string, query map[string]interface{}) (interface{}, error) {
	stmt := fmt.Sprintf("SELECT data FROM %s WHERE model = ?", s.table)
	args := []interface{}{model}

	rest := make(map[string]interface{}, len(query))
	for k, v := range query {
		rest[k] = v
	}

	if want, ok := rest[record.IDField]; ok && want != nil {
		delete(rest, record.IDField)

		keys := idKeys(want)
		if len(keys) == 0 {
			return []interface{}{}, nil
		}
		if s.postgres {
			stmt += " AND id = ANY(?)"
			args = append(args, pq.Array(keys))
		} else {
			stmt += " AND id IN (?" + strings.Repeat(", ?", len(keys)-1) + ")"
			for _, k := range keys {
				args = append(args, k)
			}
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", model, err)
	}
	defer rows.Close()

	var matched []map[string]interface{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", model, err)
		}
		raw, err := decodeRow(data)
		if err != nil {
			return nil, err
		}
		if Match(raw, rest) {
			matched = append(matched, raw)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", model, err)
	}

	sortByID(matched)
	out := make([]interface{}, len(matched))
	for i, raw := range matched {
		out[i] = raw
	}
	return out, nil
}

// Put stores raw in one transaction and returns its id
func (s *SQLStore) Put(ctx context.Context, model string, raw map[string]interface{}) (interface{}, error) {
	var id interface{}
	err := s.withTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.put(ctx, tx, model, raw)
		return err
	})
	return id, err
}

// PutAll stores several records of one model in a single transaction
func (s *SQLStore) PutAll(ctx context.Context, model string, raws []map[string]interface{}) ([]interface{}, error) {
	ids := make([]interface{}, len(raws))
	err := s.withTransaction(ctx, func(tx *sql.Tx) error {
		for i, raw := range raws {
			id, err := s.put(ctx, tx, model, raw)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLStore) put(ctx context.Context, tx *sql.Tx, model string, raw map[string]interface{}) (interface{}, error) {
	row := copyRaw(raw)
	id := row[record.IDField]
	if id == nil {
		next, err := s.nextID(ctx, tx, model)
		if err != nil {
			return nil, err
		}
		id = next
		row[record.IDField] = id
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	stmt := s.rebind(fmt.Sprintf(`INSERT INTO %s (model, id, data) VALUES (?, ?, ?)
ON CONFLICT (model, id) DO UPDATE SET data = excluded.data`, s.table))
	if _, err := tx.ExecContext(ctx, stmt, model, idKey(id), string(data)); err != nil {
		return nil, fmt.Errorf("store %s %v: %w", model, id, err)
	}

	s.logger.Debug("stored record", zap.String("model", model), zap.Any("id", id))
	return id, nil
}

// nextID returns one more than the largest numeric id of model
func (s *SQLStore) nextID(ctx context.Context, tx *sql.Tx, model string) (int64, error) {
	query := s.rebind(fmt.Sprintf("SELECT id FROM %s WHERE model = ?", s.table))
	rows, err := tx.QueryContext(ctx, query, model)
	if err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", model, err)
	}
	defer rows.Close()

	var max int64
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max + 1, rows.Err()
}

// Models returns the names of models holding records, sorted
func (s *SQLStore) Models(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT model FROM %s ORDER BY model", s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// DB returns the underlying database
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// withTransaction commits when fn succeeds and rolls back otherwise
func (s *SQLStore) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// rebind rewrites ? placeholders as $n for postgres
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decodeRow(data string) (map[string]interface{}, error) {
	raw, err := payload.DecodeJSON([]byte(data))
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: stored document is %T", ErrInvalidRecord, raw)
	}
	return m, nil
}

func idKeys(v interface{}) []string {
	values, ok := anyOf(v)
	if !ok {
		values = []interface{}{v}
	}
	keys := make([]string, 0, len(values))
	for _, item := range values {
		if item != nil {
			keys = append(keys, idKey(item))
		}
	}
	return keys
}

// sortByID orders raw records by id, numerically when both ids are numbers
func sortByID(raws []map[string]interface{}) {
	sort.SliceStable(raws, func(i, j int) bool {
		a, b := raws[i][record.IDField], raws[j][record.IDField]
		fa, okA := number(a)
		fb, okB := number(b)
		if okA && okB {
			return fa < fb
		}
		if okA != okB {
			return okA
		}
		return idKey(a) < idKey(b)
	})
}
