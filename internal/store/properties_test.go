package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"
)

// captureDB records every statement executed through database/sql so tests can
// assert on the SQL the store actually sends.
type captureDB struct {
	mu    sync.Mutex
	stmts []string
}

func (c *captureDB) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stmts) == 0 {
		return ""
	}
	return c.stmts[len(c.stmts)-1]
}

func (c *captureDB) record(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stmts = append(c.stmts, query)
}

func (c *captureDB) Connect(context.Context) (driver.Conn, error) { return &captureConn{db: c}, nil }
func (c *captureDB) Driver() driver.Driver                        { return c }
func (c *captureDB) Open(string) (driver.Conn, error)             { return &captureConn{db: c}, nil }

type captureConn struct {
	db *captureDB
}

func (c *captureConn) Prepare(query string) (driver.Stmt, error) {
	return &captureStmt{db: c.db, query: query}, nil
}
func (c *captureConn) Close() error              { return nil }
func (c *captureConn) Begin() (driver.Tx, error) { return nil, errors.New("not supported") }

type captureStmt struct {
	db    *captureDB
	query string
}

func (s *captureStmt) Close() error  { return nil }
func (s *captureStmt) NumInput() int { return -1 }

func (s *captureStmt) Exec([]driver.Value) (driver.Result, error) {
	s.db.record(s.query)
	return driver.RowsAffected(1), nil
}

func (s *captureStmt) Query([]driver.Value) (driver.Rows, error) {
	s.db.record(s.query)
	return nil, errors.New("not supported")
}

// fakeRow feeds scanProperty a features column without a database.
type fakeRow struct {
	features []byte
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[15].(*[]byte)) = r.features
	return nil
}

func TestScanPropertyRejectsCorruptFeatures(t *testing.T) {
	if _, err := scanProperty(fakeRow{features: []byte("{not json")}); err == nil {
		t.Fatal("corrupt features jsonb should fail the scan")
	}
	if _, err := scanProperty(fakeRow{features: []byte(`["pool"]`)}); err != nil {
		t.Fatalf("valid features failed: %v", err)
	}
}

// UpdateProperty must write every editable column; a column missing from the
// SET list silently drops that field on update.
func TestUpdatePropertySetsAllEditableColumns(t *testing.T) {
	capture := &captureDB{}
	db := sql.OpenDB(capture)
	defer db.Close()
	st := NewPostgresStore(db)

	err := st.UpdateProperty(context.Background(), Property{
		ID:         "prp_test",
		Title:      "Corner Duplex",
		Type:       "sale",
		Status:     "sold",
		PriceCents: 12_500_000,
		Currency:   "USD",
		UpdatedBy:  "agent",
	})
	if err != nil {
		t.Fatalf("update property: %v", err)
	}

	stmt := capture.last()
	if !strings.HasPrefix(strings.TrimSpace(stmt), "UPDATE properties") {
		t.Fatalf("unexpected statement: %q", stmt)
	}
	columns := []string{
		"title=", "description=", "type=", "status=", "price_cents=", "currency=",
		"bedrooms=", "bathrooms=", "area_m2=", "address=", "city=",
		"neighborhood_id=", "owner_id=", "features=", "updated_by_name=", "updated_at=",
	}
	for _, column := range columns {
		if !strings.Contains(stmt, column) {
			t.Errorf("UPDATE properties does not set %s", strings.TrimSuffix(column, "="))
		}
	}
}
