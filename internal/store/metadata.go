package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// StoreConfig configures the metadata store's SQLite connection.
type StoreConfig struct {
	// CacheSizeMB is the SQLite page cache size in megabytes (default: 64).
	CacheSizeMB int
}

// DefaultStoreConfig returns the default metadata store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// SQLiteStore implements MetadataStore using SQLite. It owns the
// code_blocks/files/search_stats/metadata side of cache.db; the FTS5
// keyword index lives alongside it in SQLiteBM25Index.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a metadata store at path using the
// default cache size. If path is empty, an in-memory store is created.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens a metadata store with a custom cache size.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	cacheSizeMB := cfg.CacheSizeMB
	if cacheSizeMB <= 0 {
		cacheSizeMB = DefaultStoreConfig().CacheSizeMB
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention, matching the keyword
	// index's connection pool shape.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for callers that need direct access
// (health checks, migrations run by the CLI's status command).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		root_path     TEXT NOT NULL,
		project_type  TEXT,
		chunk_count   INTEGER DEFAULT 0,
		file_count    INTEGER DEFAULT 0,
		indexed_at    TEXT,
		version       TEXT
	);

	CREATE TABLE IF NOT EXISTS files (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL,
		path          TEXT NOT NULL,
		size          INTEGER DEFAULT 0,
		mod_time      TEXT,
		content_hash  TEXT,
		language      TEXT,
		content_type  TEXT,
		indexed_at    TEXT,
		UNIQUE(project_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
	CREATE INDEX IF NOT EXISTS idx_files_mod_time ON files(project_id, mod_time);

	CREATE TABLE IF NOT EXISTS code_blocks (
		id            TEXT PRIMARY KEY,
		file_id       TEXT NOT NULL,
		file_path     TEXT,
		content       TEXT,
		raw_content   TEXT,
		context       TEXT,
		content_hash  TEXT,
		content_type  TEXT,
		block_type    TEXT,
		language      TEXT,
		start_line    INTEGER,
		end_line      INTEGER,
		symbol_name   TEXT,
		parent_symbol TEXT,
		chunk_index   INTEGER,
		tokens        INTEGER,
		symbols_json  TEXT,
		metadata_json TEXT,
		embedding     BLOB,
		embedder_model TEXT,
		created_at    TEXT,
		updated_at    TEXT,
		FOREIGN KEY(file_id) REFERENCES files(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_file ON code_blocks(file_id);
	CREATE INDEX IF NOT EXISTS idx_blocks_symbol ON code_blocks(symbol_name);

	CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS search_stats (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		query_hash   TEXT,
		query        TEXT NOT NULL,
		result_count INTEGER,
		avg_score    REAL,
		duration_ms  INTEGER,
		created_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_search_stats_hash ON search_stats(query_hash);

	CREATE TABLE IF NOT EXISTS vector_map (
		label    INTEGER PRIMARY KEY,
		block_id TEXT NOT NULL UNIQUE
	);

	INSERT OR IGNORE INTO metadata(key, value) VALUES ('schema_version', '2');
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Project operations ---

func (s *SQLiteStore) SaveProject(ctx context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects(id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			root_path=excluded.root_path,
			project_type=excluded.project_type,
			chunk_count=excluded.chunk_count,
			file_count=excluded.file_count,
			indexed_at=excluded.indexed_at,
			version=excluded.version
	`, project.ID, project.Name, project.RootPath, project.ProjectType,
		project.ChunkCount, project.FileCount, formatTimeRFC3339(project.IndexedAt), project.Version)
	return err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version
		FROM projects WHERE id = ?
	`, id)

	var p Project
	var indexedAt string
	err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &indexedAt, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.IndexedAt = parseTimeRFC3339(indexedAt)
	return &p, nil
}

func (s *SQLiteStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET file_count = ?, chunk_count = ? WHERE id = ?
	`, fileCount, chunkCount, id)
	return err
}

func (s *SQLiteStore) RefreshProjectStats(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fileCount, chunkCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id = ?`, id).Scan(&fileCount); err != nil {
		return fmt.Errorf("count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM code_blocks WHERE file_id IN (SELECT id FROM files WHERE project_id = ?)
	`, id).Scan(&chunkCount); err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?
	`, fileCount, chunkCount, formatTimeRFC3339(time.Now()), id)
	return err
}

// --- File operations ---

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files(id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			id=excluded.id,
			size=excluded.size,
			mod_time=excluded.mod_time,
			content_hash=excluded.content_hash,
			language=excluded.language,
			content_type=excluded.content_type,
			indexed_at=excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Path, f.Size,
			formatTimeRFC3339(f.ModTime), f.ContentHash, f.Language, f.ContentType,
			formatTimeRFC3339(f.IndexedAt)); err != nil {
			return fmt.Errorf("save file %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) scanFile(row interface {
	Scan(dest ...any) error
}) (*File, error) {
	var f File
	var modTime, indexedAt string
	err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &modTime, &f.ContentHash,
		&f.Language, &f.ContentType, &indexedAt)
	if err != nil {
		return nil, err
	}
	f.ModTime = parseTimeRFC3339(modTime)
	f.IndexedAt = parseTimeRFC3339(indexedAt)
	return &f, nil
}

func (s *SQLiteStore) GetFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND path = ?
	`, projectID, path)

	f, err := s.scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND mod_time > ?
		ORDER BY mod_time
	`, projectID, formatTimeRFC3339(since))
	if err != nil {
		return nil, fmt.Errorf("get changed files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListFiles returns a page of files ordered by path, and an opaque cursor
// for the next page (empty when exhausted). The cursor encodes an offset;
// ListFiles rejects negative offsets and malformed cursors.
func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*File, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := 0
	if cursor != "" {
		decoded, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		offset = decoded
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ?
		ORDER BY path
		LIMIT ? OFFSET ?
	`, projectID, limit+1, offset)
	if err != nil {
		return nil, "", fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(files) > limit {
		files = files[:limit]
		nextCursor = encodeCursor(offset + limit)
	}
	return files, nextCursor, nil
}

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("offset:%d", offset)))
}

func decodeCursor(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] != "offset" {
		return 0, fmt.Errorf("invalid cursor format")
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid cursor offset: %w", err)
	}
	if offset < 0 {
		return 0, fmt.Errorf("cursor offset must be non-negative, got %d", offset)
	}
	return offset, nil
}

func (s *SQLiteStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get files for reconciliation: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*File)
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, err
		}
		result[f.Path] = f
	}
	return result, rows.Err()
}

// ListFilePathsUnder returns every tracked path under dirPrefix (a
// project-relative directory). An empty prefix matches every file.
func (s *SQLiteStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirPrefix = strings.TrimSuffix(dirPrefix, "/")

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list file paths under: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if dirPrefix == "" || p == dirPrefix || strings.HasPrefix(p, dirPrefix+"/") {
			paths = append(paths, p)
		}
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID)
	return err
}

// --- Chunk operations ---

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_blocks(
			id, file_id, file_path, content, raw_content, context, content_hash,
			content_type, block_type, language, start_line, end_line,
			symbol_name, parent_symbol, chunk_index, tokens, symbols_json,
			metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_id=excluded.file_id, file_path=excluded.file_path,
			content=excluded.content, raw_content=excluded.raw_content,
			context=excluded.context, content_hash=excluded.content_hash,
			content_type=excluded.content_type, block_type=excluded.block_type,
			language=excluded.language, start_line=excluded.start_line,
			end_line=excluded.end_line, symbol_name=excluded.symbol_name,
			parent_symbol=excluded.parent_symbol, chunk_index=excluded.chunk_index,
			tokens=excluded.tokens, symbols_json=excluded.symbols_json,
			metadata_json=excluded.metadata_json, updated_at=excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		symbolsJSON, err := marshalJSON(c.Symbols)
		if err != nil {
			return fmt.Errorf("marshal symbols for chunk %s: %w", c.ID, err)
		}
		metadataJSON, err := marshalJSON(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent,
			c.Context, c.ContentHash, string(c.ContentType), c.BlockType, c.Language,
			c.StartLine, c.EndLine, c.SymbolName, c.ParentSymbol, c.ChunkIndex, c.Tokens,
			symbolsJSON, metadataJSON, formatTimeRFC3339(createdAt), formatTimeRFC3339(updatedAt)); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ReplaceFileChunks atomically upserts file and swaps its chunk set within a
// single transaction: existing blocks for the file are deleted and the new
// ones inserted before commit, so concurrent readers never see the file with
// zero blocks. BM25/vector-store updates happen separately, after commit,
// since those stores are append-only outside this transaction.
func (s *SQLiteStore) ReplaceFileChunks(ctx context.Context, file *File, chunks []*Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files(id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			id=excluded.id,
			size=excluded.size,
			mod_time=excluded.mod_time,
			content_hash=excluded.content_hash,
			language=excluded.language,
			content_type=excluded.content_type,
			indexed_at=excluded.indexed_at
	`, file.ID, file.ProjectID, file.Path, file.Size, formatTimeRFC3339(file.ModTime),
		file.ContentHash, file.Language, file.ContentType, formatTimeRFC3339(file.IndexedAt)); err != nil {
		return nil, fmt.Errorf("upsert file: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM code_blocks WHERE file_id = ?`, file.ID)
	if err != nil {
		return nil, fmt.Errorf("query existing chunks: %w", err)
	}
	var removedIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan existing chunk id: %w", err)
		}
		removedIDs = append(removedIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_blocks WHERE file_id = ?`, file.ID); err != nil {
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO code_blocks(
				id, file_id, file_path, content, raw_content, context, content_hash,
				content_type, block_type, language, start_line, end_line,
				symbol_name, parent_symbol, chunk_index, tokens, symbols_json,
				metadata_json, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return nil, fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			symbolsJSON, err := marshalJSON(c.Symbols)
			if err != nil {
				return nil, fmt.Errorf("marshal symbols for chunk %s: %w", c.ID, err)
			}
			metadataJSON, err := marshalJSON(c.Metadata)
			if err != nil {
				return nil, fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
			}

			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			updatedAt := c.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = createdAt
			}

			if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent,
				c.Context, c.ContentHash, string(c.ContentType), c.BlockType, c.Language,
				c.StartLine, c.EndLine, c.SymbolName, c.ParentSymbol, c.ChunkIndex, c.Tokens,
				symbolsJSON, metadataJSON, formatTimeRFC3339(createdAt), formatTimeRFC3339(updatedAt)); err != nil {
				return nil, fmt.Errorf("insert chunk %s: %w", c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return removedIDs, nil
}

func (s *SQLiteStore) scanChunk(row interface {
	Scan(dest ...any) error
}) (*Chunk, error) {
	var c Chunk
	var contentType string
	var symbolsJSON, metadataJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context,
		&c.ContentHash, &contentType, &c.BlockType, &c.Language, &c.StartLine, &c.EndLine,
		&c.SymbolName, &c.ParentSymbol, &c.ChunkIndex, &c.Tokens, &symbolsJSON, &metadataJSON,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.ContentType = ContentType(contentType)
	c.CreatedAt = parseTimeRFC3339(createdAt)
	c.UpdatedAt = parseTimeRFC3339(updatedAt)

	if symbolsJSON.Valid && symbolsJSON.String != "" {
		var symbols []*Symbol
		if err := json.Unmarshal([]byte(symbolsJSON.String), &symbols); err != nil {
			return nil, fmt.Errorf("unmarshal symbols: %w", err)
		}
		c.Symbols = symbols
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		var md map[string]string
		if err := json.Unmarshal([]byte(metadataJSON.String), &md); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		c.Metadata = md
	}

	return &c, nil
}

const chunkSelectColumns = `
	id, file_id, file_path, content, raw_content, context, content_hash,
	content_type, block_type, language, start_line, end_line,
	symbol_name, parent_symbol, chunk_index, tokens, symbols_json, metadata_json,
	created_at, updated_at
`

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkSelectColumns+` FROM code_blocks WHERE id = ?`, id)
	c, err := s.scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT %s FROM code_blocks WHERE id IN (%s)`, chunkSelectColumns, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkSelectColumns+` FROM code_blocks WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, fmt.Errorf("get chunks by file: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM code_blocks WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM code_blocks WHERE file_id = ?`, fileID)
	return err
}

// --- Symbol operations ---

func (s *SQLiteStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbols_json FROM code_blocks
		WHERE symbol_name LIKE '%' || ? || '%' AND symbols_json IS NOT NULL
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()

	var results []*Symbol
	for rows.Next() {
		var symbolsJSON string
		if err := rows.Scan(&symbolsJSON); err != nil {
			return nil, err
		}
		var symbols []*Symbol
		if err := json.Unmarshal([]byte(symbolsJSON), &symbols); err != nil {
			continue
		}
		for _, sym := range symbols {
			if strings.Contains(sym.Name, name) {
				results = append(results, sym)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountChunksByLanguage returns indexed block counts grouped by language.
func (s *SQLiteStore) CountChunksByLanguage(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT language, COUNT(*) FROM code_blocks GROUP BY language
	`)
	if err != nil {
		return nil, fmt.Errorf("count chunks by language: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		counts[lang] = n
	}
	return counts, rows.Err()
}

// --- State operations ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// --- Embedding operations ---

func (s *SQLiteStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("chunkIDs and embeddings length mismatch: %d vs %d", len(chunkIDs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE code_blocks SET embedding = ?, embedder_model = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, embeddingToBytes(embeddings[i]), model, id); err != nil {
			return fmt.Errorf("save embedding for chunk %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding FROM code_blocks WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("get all embeddings: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			continue
		}
		result[id] = bytesToEmbedding(raw)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) (withEmbedding, withoutEmbedding int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_blocks WHERE embedding IS NOT NULL`).Scan(&withEmbedding); err != nil {
		return 0, 0, fmt.Errorf("count with embedding: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_blocks WHERE embedding IS NULL`).Scan(&withoutEmbedding); err != nil {
		return 0, 0, fmt.Errorf("count without embedding: %w", err)
	}
	return withEmbedding, withoutEmbedding, nil
}

// embeddingToBytes serializes a float32 vector as little-endian bytes for
// BLOB storage. Returns nil for an empty vector.
func embeddingToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToEmbedding is the inverse of embeddingToBytes. Returns nil for
// empty or malformed input.
func bytesToEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// --- Checkpoint operations ---

const (
	checkpointStageKey     = "checkpoint_stage_v2"
	checkpointTotalKey     = "checkpoint_total_v2"
	checkpointEmbeddedKey  = "checkpoint_embedded_v2"
	checkpointTimestampKey = "checkpoint_timestamp_v2"
	checkpointModelKey     = "checkpoint_embedder_model_v2"
)

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	now := time.Now()
	for k, v := range map[string]string{
		checkpointStageKey:     stage,
		checkpointTotalKey:     strconv.Itoa(total),
		checkpointEmbeddedKey:  strconv.Itoa(embeddedCount),
		checkpointTimestampKey: formatTimeRFC3339(now),
		checkpointModelKey:     embedderModel,
	} {
		if err := s.SetState(ctx, k, v); err != nil {
			return fmt.Errorf("save checkpoint %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	stage, err := s.GetState(ctx, checkpointStageKey)
	if err != nil {
		return nil, err
	}
	if stage == "" || stage == "complete" {
		return nil, nil
	}

	totalStr, err := s.GetState(ctx, checkpointTotalKey)
	if err != nil {
		return nil, err
	}
	embeddedStr, err := s.GetState(ctx, checkpointEmbeddedKey)
	if err != nil {
		return nil, err
	}
	timestampStr, err := s.GetState(ctx, checkpointTimestampKey)
	if err != nil {
		return nil, err
	}
	model, err := s.GetState(ctx, checkpointModelKey)
	if err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(totalStr)
	embedded, _ := strconv.Atoi(embeddedStr)

	return &IndexCheckpoint{
		Stage:         stage,
		Total:         total,
		EmbeddedCount: embedded,
		Timestamp:     parseTimeRFC3339(timestampStr),
		EmbedderModel: model,
	}, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM metadata WHERE key IN (?, ?, ?, ?, ?)
	`, checkpointStageKey, checkpointTotalKey, checkpointEmbeddedKey, checkpointTimestampKey, checkpointModelKey)
	return err
}

// --- Observability ---

// SaveSearchStat appends a single query's observability record. Best-effort
// by design from the caller's perspective: this is a ring of history, not
// part of the catalog's correctness guarantees.
func (s *SQLiteStore) SaveSearchStat(ctx context.Context, stat *SearchStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_stats(query_hash, query, result_count, avg_score, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, stat.QueryHash, stat.Query, stat.ResultCount, stat.AvgScore,
		stat.ExecutionTime.Milliseconds(), formatTimeRFC3339(stat.Timestamp))
	return err
}

// --- Lifecycle ---

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// --- shared helpers ---

// sortableTimeLayout has a fixed-width fractional-second field so that
// lexicographic string ordering (used by range queries on mod_time) agrees
// with chronological ordering, unlike time.RFC3339Nano's trimmed fraction.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimeRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sortableTimeLayout)
}

func parseTimeRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(sortableTimeLayout, s)
	if err != nil {
		slog.Warn("metadata_store_time_parse_failed", slog.String("value", s), slog.String("error", err.Error()))
		return time.Time{}
	}
	return t
}

func marshalJSON(v any) (any, error) {
	switch x := v.(type) {
	case []*Symbol:
		if len(x) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(x) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
