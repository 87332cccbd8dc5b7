package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"ecodash/internal/core"
	"ecodash/internal/source"
	"ecodash/internal/spreadsheet"

	_ "modernc.org/sqlite"
)

const (
	valueGeneratedColumns = `year, electricity_sales, oil_revenues, other_revenues, interest_income,
		share_in_net_income_of_associate, miscellaneous_income, total_revenue`

	expenditureColumns = `e.company_id, e.year, e.type_id, COALESCE(t.name, ''), e.government,
		e.local_supplier_spending, e.foreign_supplier_spending, e.employee, e.community,
		e.depreciation, e.depletion, e.others, e.total_distributed, e.total_expenditures`

	capitalProviderColumns = `year, interest, dividends_to_nci, dividends_to_parent, total`
)

// SQLiteRepository is the Record Source backed by a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ source.RecordSource = (*SQLiteRepository)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent workflow writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SeedReference inserts companies and expenditure types that are not present yet.
func (r *SQLiteRepository) SeedReference(ctx context.Context, companies []core.Company, types []core.ExpenditureType) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, c := range companies {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO companies (id, name) VALUES (?, ?)`, c.ID, name); err != nil {
			return fmt.Errorf("seed company %s: %w", c.ID, err)
		}
	}
	for _, t := range types {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO expenditure_types (id, name) VALUES (?, ?)`, t.ID, t.Name); err != nil {
			return fmt.Errorf("seed expenditure type %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListCompanies(ctx context.Context) ([]core.Company, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	var out []core.Company
	for rows.Next() {
		var c core.Company
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListExpenditureTypes(ctx context.Context) ([]core.ExpenditureType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM expenditure_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list expenditure types: %w", err)
	}
	defer rows.Close()
	var out []core.ExpenditureType
	for rows.Next() {
		var t core.ExpenditureType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan expenditure type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanValueGenerated(s rowScanner) (core.ValueGeneratedRecord, error) {
	var v core.ValueGeneratedRecord
	err := s.Scan(&v.Year, &v.ElectricitySales, &v.OilRevenues, &v.OtherRevenues, &v.InterestIncome,
		&v.ShareInNetIncomeOfAssociate, &v.MiscellaneousIncome, &v.TotalRevenue)
	return v, err
}

func (r *SQLiteRepository) ListValueGenerated(ctx context.Context) ([]core.ValueGeneratedRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+valueGeneratedColumns+` FROM value_generated ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("list value generated: %w", err)
	}
	defer rows.Close()
	var out []core.ValueGeneratedRecord
	for rows.Next() {
		v, err := scanValueGenerated(rows)
		if err != nil {
			return nil, fmt.Errorf("scan value generated: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetValueGenerated(ctx context.Context, year int) (core.ValueGeneratedRecord, error) {
	v, err := scanValueGenerated(r.db.QueryRowContext(ctx,
		`SELECT `+valueGeneratedColumns+` FROM value_generated WHERE year = ?`, year))
	if errors.Is(err, sql.ErrNoRows) {
		return v, fmt.Errorf("value generated %d: %w", year, core.ErrNotFound)
	}
	if err != nil {
		return v, fmt.Errorf("get value generated %d: %w", year, err)
	}
	return v, nil
}

func (r *SQLiteRepository) CreateValueGenerated(ctx context.Context, v core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	if err := core.ValidateYear(v.Year); err != nil {
		return core.ValueGeneratedRecord{}, err
	}
	v = core.DeriveValueGenerated(v)
	inserted, err := insertValueGenerated(ctx, r.db, v)
	if err != nil {
		return core.ValueGeneratedRecord{}, err
	}
	if !inserted {
		return core.ValueGeneratedRecord{}, fmt.Errorf("value generated %d: %w", v.Year, core.ErrAlreadyExists)
	}
	slog.InfoContext(ctx, "Value generated saved to SQLite", "year", v.Year, "total_revenue", v.TotalRevenue.String())
	return v, nil
}

func insertValueGenerated(ctx context.Context, db execer, v core.ValueGeneratedRecord) (bool, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO value_generated (`+valueGeneratedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(year) DO NOTHING`,
		v.Year, v.ElectricitySales, v.OilRevenues, v.OtherRevenues, v.InterestIncome,
		v.ShareInNetIncomeOfAssociate, v.MiscellaneousIncome, v.TotalRevenue)
	if err != nil {
		return false, fmt.Errorf("insert value generated %d: %w", v.Year, err)
	}
	return affected(res)
}

func (r *SQLiteRepository) UpdateValueGenerated(ctx context.Context, year int, v core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	v.Year = year
	v = core.DeriveValueGenerated(v)
	res, err := r.db.ExecContext(ctx, `UPDATE value_generated SET
		electricity_sales = ?, oil_revenues = ?, other_revenues = ?, interest_income = ?,
		share_in_net_income_of_associate = ?, miscellaneous_income = ?, total_revenue = ?,
		updated_at = CURRENT_TIMESTAMP
		WHERE year = ?`,
		v.ElectricitySales, v.OilRevenues, v.OtherRevenues, v.InterestIncome,
		v.ShareInNetIncomeOfAssociate, v.MiscellaneousIncome, v.TotalRevenue, year)
	if err != nil {
		return core.ValueGeneratedRecord{}, fmt.Errorf("update value generated %d: %w", year, err)
	}
	if ok, err := affected(res); err != nil {
		return core.ValueGeneratedRecord{}, err
	} else if !ok {
		return core.ValueGeneratedRecord{}, fmt.Errorf("value generated %d: %w", year, core.ErrNotFound)
	}
	return v, nil
}

func scanExpenditure(s rowScanner) (core.ExpenditureRecord, error) {
	var e core.ExpenditureRecord
	err := s.Scan(&e.Company, &e.Year, &e.TypeID, &e.TypeName, &e.Government,
		&e.LocalSupplierSpending, &e.ForeignSupplierSpending, &e.Employee, &e.Community,
		&e.Depreciation, &e.Depletion, &e.Others, &e.TotalDistributed, &e.TotalExpenditures)
	return e, err
}

func (r *SQLiteRepository) queryExpenditures(ctx context.Context, where string, args ...any) ([]core.ExpenditureRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenditureColumns+`
		FROM expenditures e LEFT JOIN expenditure_types t ON t.id = e.type_id `+where+`
		ORDER BY e.company_id, e.year DESC, e.type_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenditures: %w", err)
	}
	defer rows.Close()
	var out []core.ExpenditureRecord
	for rows.Next() {
		e, err := scanExpenditure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expenditure: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListExpenditures(ctx context.Context) ([]core.ExpenditureRecord, error) {
	return r.queryExpenditures(ctx, "")
}

func (r *SQLiteRepository) GetExpenditures(ctx context.Context, company string, year int) ([]core.ExpenditureRecord, error) {
	out, err := r.queryExpenditures(ctx, `WHERE e.company_id = ? AND e.year = ?`, company, year)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("expenditures %s/%d: %w", company, year, core.ErrNotFound)
	}
	return out, nil
}

func (r *SQLiteRepository) ExpenditureExists(ctx context.Context, key core.ExpenditureKey) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM expenditures WHERE company_id = ? AND year = ? AND type_id = ?)`,
		key.Company, key.Year, key.TypeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check expenditure %s: %w", key, err)
	}
	return exists, nil
}

func (r *SQLiteRepository) CreateExpenditure(ctx context.Context, e core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	if err := e.Validate(); err != nil {
		return core.ExpenditureRecord{}, err
	}
	e = core.DeriveExpenditure(e)
	name, err := checkRefs(ctx, r.db, e.Company, e.TypeID)
	if err != nil {
		return core.ExpenditureRecord{}, err
	}
	e.TypeName = name
	inserted, err := insertExpenditure(ctx, r.db, e)
	if err != nil {
		return core.ExpenditureRecord{}, err
	}
	if !inserted {
		return core.ExpenditureRecord{}, fmt.Errorf("expenditure %s: %w", e.Key(), core.ErrAlreadyExists)
	}
	slog.InfoContext(ctx, "Expenditure saved to SQLite",
		"company", e.Company,
		"year", e.Year,
		"type_id", e.TypeID,
		"total_expenditures", e.TotalExpenditures.String())
	return e, nil
}

func insertExpenditure(ctx context.Context, db execer, e core.ExpenditureRecord) (bool, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO expenditures (company_id, year, type_id, government,
		local_supplier_spending, foreign_supplier_spending, employee, community,
		depreciation, depletion, others, total_distributed, total_expenditures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, year, type_id) DO NOTHING`,
		e.Company, e.Year, e.TypeID, e.Government,
		e.LocalSupplierSpending, e.ForeignSupplierSpending, e.Employee, e.Community,
		e.Depreciation, e.Depletion, e.Others, e.TotalDistributed, e.TotalExpenditures)
	if err != nil {
		return false, fmt.Errorf("insert expenditure %s: %w", e.Key(), err)
	}
	return affected(res)
}

func (r *SQLiteRepository) UpdateExpenditure(ctx context.Context, key core.ExpenditureKey, e core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	e.Company, e.Year, e.TypeID = key.Company, key.Year, key.TypeID
	e = core.DeriveExpenditure(e)
	res, err := r.db.ExecContext(ctx, `UPDATE expenditures SET
		government = ?, local_supplier_spending = ?, foreign_supplier_spending = ?, employee = ?,
		community = ?, depreciation = ?, depletion = ?, others = ?,
		total_distributed = ?, total_expenditures = ?, updated_at = CURRENT_TIMESTAMP
		WHERE company_id = ? AND year = ? AND type_id = ?`,
		e.Government, e.LocalSupplierSpending, e.ForeignSupplierSpending, e.Employee,
		e.Community, e.Depreciation, e.Depletion, e.Others,
		e.TotalDistributed, e.TotalExpenditures,
		key.Company, key.Year, key.TypeID)
	if err != nil {
		return core.ExpenditureRecord{}, fmt.Errorf("update expenditure %s: %w", key, err)
	}
	if ok, err := affected(res); err != nil {
		return core.ExpenditureRecord{}, err
	} else if !ok {
		return core.ExpenditureRecord{}, fmt.Errorf("expenditure %s: %w", key, core.ErrNotFound)
	}
	_ = r.db.QueryRowContext(ctx, `SELECT name FROM expenditure_types WHERE id = ?`, key.TypeID).Scan(&e.TypeName)
	return e, nil
}

func scanCapitalProvider(s rowScanner) (core.CapitalProviderPaymentRecord, error) {
	var c core.CapitalProviderPaymentRecord
	err := s.Scan(&c.Year, &c.Interest, &c.DividendsToNCI, &c.DividendsToParent, &c.Total)
	return c, err
}

func (r *SQLiteRepository) ListCapitalProviderPayments(ctx context.Context) ([]core.CapitalProviderPaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+capitalProviderColumns+` FROM capital_provider_payments ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("list capital provider payments: %w", err)
	}
	defer rows.Close()
	var out []core.CapitalProviderPaymentRecord
	for rows.Next() {
		c, err := scanCapitalProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capital provider payment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCapitalProviderPayment(ctx context.Context, year int) (core.CapitalProviderPaymentRecord, error) {
	c, err := scanCapitalProvider(r.db.QueryRowContext(ctx,
		`SELECT `+capitalProviderColumns+` FROM capital_provider_payments WHERE year = ?`, year))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("capital provider payment %d: %w", year, core.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("get capital provider payment %d: %w", year, err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCapitalProviderPayment(ctx context.Context, c core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	if err := core.ValidateYear(c.Year); err != nil {
		return core.CapitalProviderPaymentRecord{}, err
	}
	c = core.DeriveCapitalProvider(c)
	inserted, err := insertCapitalProvider(ctx, r.db, c)
	if err != nil {
		return core.CapitalProviderPaymentRecord{}, err
	}
	if !inserted {
		return core.CapitalProviderPaymentRecord{}, fmt.Errorf("capital provider payment %d: %w", c.Year, core.ErrAlreadyExists)
	}
	slog.InfoContext(ctx, "Capital provider payment saved to SQLite", "year", c.Year, "total", c.Total.String())
	return c, nil
}

func insertCapitalProvider(ctx context.Context, db execer, c core.CapitalProviderPaymentRecord) (bool, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO capital_provider_payments (`+capitalProviderColumns+`)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT(year) DO NOTHING`,
		c.Year, c.Interest, c.DividendsToNCI, c.DividendsToParent, c.Total)
	if err != nil {
		return false, fmt.Errorf("insert capital provider payment %d: %w", c.Year, err)
	}
	return affected(res)
}

func (r *SQLiteRepository) UpdateCapitalProviderPayment(ctx context.Context, year int, c core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	c.Year = year
	c = core.DeriveCapitalProvider(c)
	res, err := r.db.ExecContext(ctx, `UPDATE capital_provider_payments SET
		interest = ?, dividends_to_nci = ?, dividends_to_parent = ?, total = ?, updated_at = CURRENT_TIMESTAMP
		WHERE year = ?`,
		c.Interest, c.DividendsToNCI, c.DividendsToParent, c.Total, year)
	if err != nil {
		return core.CapitalProviderPaymentRecord{}, fmt.Errorf("update capital provider payment %d: %w", year, err)
	}
	if ok, err := affected(res); err != nil {
		return core.CapitalProviderPaymentRecord{}, err
	} else if !ok {
		return core.CapitalProviderPaymentRecord{}, fmt.Errorf("capital provider payment %d: %w", year, core.ErrNotFound)
	}
	return c, nil
}

func (r *SQLiteRepository) Template(ctx context.Context, section core.Section) ([]byte, error) {
	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	types, err := r.ListExpenditureTypes(ctx)
	if err != nil {
		return nil, err
	}
	return spreadsheet.Template(section, companies, types)
}

func (r *SQLiteRepository) Import(ctx context.Context, section core.Section, filename string, data []byte) (core.ImportResult, error) {
	res, err := source.RunImport(ctx, r, section, filename, data, r.applyBatch)
	if err == nil {
		slog.InfoContext(ctx, "Import processed",
			"section", string(section),
			"file", filename,
			"successful_imports", res.SuccessfulImports,
			"errors", res.Errors)
	}
	return res, err
}

// applyBatch inserts every record in one transaction and rolls back when any
// key already exists.
func (r *SQLiteRepository) applyBatch(ctx context.Context, b spreadsheet.Batch) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	var conflicts []string
	record := func(inserted bool, err error, key string) error {
		if err != nil {
			return err
		}
		if !inserted {
			conflicts = append(conflicts, source.ConflictMessage(key))
		}
		return nil
	}

	for _, v := range b.ValueGenerated {
		ok, err := insertValueGenerated(ctx, tx, v)
		if err := record(ok, err, strconv.Itoa(v.Year)); err != nil {
			return nil, err
		}
	}
	for _, e := range b.Expenditures {
		ok, err := insertExpenditure(ctx, tx, e)
		if err := record(ok, err, e.Key().String()); err != nil {
			return nil, err
		}
	}
	for _, c := range b.CapitalProvider {
		ok, err := insertCapitalProvider(ctx, tx, c)
		if err := record(ok, err, strconv.Itoa(c.Year)); err != nil {
			return nil, err
		}
	}

	if len(conflicts) > 0 {
		return conflicts, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return nil, nil
}

// checkRefs returns the type name when both references exist.
func checkRefs(ctx context.Context, db execer, company, typeID string) (string, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies WHERE id = ?`, company).Scan(&n); err != nil {
		return "", fmt.Errorf("check company: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: company %q", core.ErrUnknownRef, company)
	}
	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM expenditure_types WHERE id = ?`, typeID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: expenditure type %q", core.ErrUnknownRef, typeID)
	}
	if err != nil {
		return "", fmt.Errorf("check expenditure type: %w", err)
	}
	return name, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
