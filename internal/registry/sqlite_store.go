package registry

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/agentkit-run/agentkit/internal/core"
)

// SQLiteStore is the optional embedded-database alternative to JSONStore,
// for deployments that want queryable history instead of a flat file. It
// borrows the teacher's dual-connection pattern (a single write
// connection, a pooled read-only one) so concurrent Snapshot reads never
// contend with the writer for SQLITE_BUSY.
type SQLiteStore struct {
	db     *sql.DB
	readDB *sql.DB
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS task_records (
	id            TEXT PRIMARY KEY,
	submitted_at  TEXT NOT NULL,
	status        TEXT NOT NULL,
	runner_kind   TEXT NOT NULL,
	priority      TEXT NOT NULL,
	document      TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if absent) a SQLite-backed registry at
// dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, core.ErrInternal("opening registry database: " + err.Error())
	}
	db.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		db.Close()
		return nil, core.ErrInternal("opening registry read connection: " + err.Error())
	}
	readDB.SetMaxOpenConns(10)

	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		readDB.Close()
		return nil, core.ErrInternal("migrating registry schema: " + err.Error())
	}

	return &SQLiteStore{db: db, readDB: readDB}, nil
}

func (s *SQLiteStore) Record(task *core.Task) error {
	if !task.Status.Terminal() {
		return core.ErrValidation(core.CodeInvalidArguments, "registry only records terminal tasks")
	}
	doc, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO task_records (id, submitted_at, status, runner_kind, priority, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, document=excluded.document
	`, task.ID, task.SubmittedAt.Format(timeLayout), string(task.Status), string(task.RunnerKind), string(task.Priority), string(doc))
	if err != nil {
		return core.ErrInternal("recording task: " + err.Error())
	}
	return nil
}

func (s *SQLiteStore) Snapshot() ([]*core.Task, error) {
	rows, err := s.readDB.QueryContext(context.Background(), `
		SELECT document FROM task_records ORDER BY submitted_at DESC
	`)
	if err != nil {
		return nil, core.ErrInternal("querying registry snapshot: " + err.Error())
	}
	defer rows.Close()

	var out []*core.Task
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var task core.Task
		if err := json.Unmarshal([]byte(doc), &task); err != nil {
			return nil, err
		}
		out = append(out, &task)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.readDB.Close()
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

var _ Store = (*SQLiteStore)(nil)
