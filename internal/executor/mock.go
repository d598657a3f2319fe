package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MockDB is a test double for the Beginner interface.
type MockDB struct {
	Tx       *MockTx
	BeginErr error

	Begun int
}

func (m *MockDB) Begin(_ context.Context) (pgx.Tx, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	m.Begun++
	if m.Tx == nil {
		m.Tx = &MockTx{}
	}
	return m.Tx, nil
}

// MockTx records executed statements and can be told to fail on a given
// statement substring. Only the methods the executor touches do anything.
type MockTx struct {
	FailOn  string // substring of the statement that should fail
	ExecErr error  // error returned when FailOn matches

	Statements []string
	Committed  bool
	RolledBack bool
}

func (m *MockTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.Statements = append(m.Statements, sql)
	if m.FailOn != "" && strings.Contains(sql, m.FailOn) {
		err := m.ExecErr
		if err == nil {
			err = errors.New("forced statement failure")
		}
		return pgconn.CommandTag{}, err
	}
	return pgconn.CommandTag{}, nil
}

func (m *MockTx) Commit(_ context.Context) error {
	m.Committed = true
	return nil
}

func (m *MockTx) Rollback(_ context.Context) error {
	if !m.Committed {
		m.RolledBack = true
	}
	return nil
}

func (m *MockTx) Begin(_ context.Context) (pgx.Tx, error) { return m, nil }

func (m *MockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported by MockTx")
}

func (m *MockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }

func (m *MockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *MockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported by MockTx")
}

func (m *MockTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported by MockTx")
}

func (m *MockTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }

func (m *MockTx) Conn() *pgx.Conn { return nil }

var _ pgx.Tx = (*MockTx)(nil)
