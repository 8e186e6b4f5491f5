package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DomainStore = (*DomainRepo)(nil)

// DomainRepo is the SQLite implementation of the DomainStore port interface.
type DomainRepo struct {
	db *DB
}

// NewDomainRepo creates a new DomainRepo backed by the given DB.
func NewDomainRepo(db *DB) *DomainRepo {
	return &DomainRepo{db: db}
}

// GetOrCreate inserts d unless a domain with the same owner and name exists,
// then returns the stored row. The UNIQUE(owner, name) constraint makes
// concurrent callers converge on a single domain.
func (r *DomainRepo) GetOrCreate(ctx context.Context, d model.Domain) (model.Domain, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.Domain{}, fmt.Errorf("begin domain tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertDomain = `INSERT INTO domains (owner, name, description, auto_generated, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, name) DO NOTHING`
	res, err := tx.ExecContext(ctx, insertDomain, d.Owner, d.Name, d.Description, d.AutoGenerated, formatTime(d.CreatedAt))
	if err != nil {
		return model.Domain{}, fmt.Errorf("insert domain %q: %w", d.Name, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return model.Domain{}, fmt.Errorf("check rows affected: %w", err)
	}

	if inserted == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return model.Domain{}, fmt.Errorf("read domain id: %w", err)
		}

		const insertSpec = `INSERT INTO domain_specifications (domain_id, position, kind, includes, excludes) VALUES (?, ?, ?, ?, ?)`
		for i, spec := range d.Specifications {
			if _, err := tx.ExecContext(ctx, insertSpec, id, i, string(spec.Kind), spec.Includes, spec.Excludes); err != nil {
				return model.Domain{}, fmt.Errorf("insert specification for domain %q: %w", d.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Domain{}, fmt.Errorf("commit domain %q: %w", d.Name, err)
	}

	stored, err := r.getByName(ctx, r.db.Writer, d.Owner, d.Name)
	if err != nil {
		return model.Domain{}, err
	}
	if stored == nil {
		return model.Domain{}, fmt.Errorf("domain %q vanished after create", d.Name)
	}
	return *stored, nil
}

// AddScheme appends scheme to the first scheme specification of domain id
// unless some scheme specification already accepts it.
func (r *DomainRepo) AddScheme(ctx context.Context, owner string, id int64, scheme string) (model.Domain, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.Domain{}, fmt.Errorf("begin domain tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const specQuery = `SELECT s.id, s.includes
		FROM domain_specifications s
		JOIN domains d ON d.id = s.domain_id
		WHERE d.owner = ? AND d.id = ? AND s.kind = ?
		ORDER BY s.position`
	rows, err := tx.QueryContext(ctx, specQuery, owner, id, string(model.SpecificationScheme))
	if err != nil {
		return model.Domain{}, fmt.Errorf("list scheme specifications of domain %d: %w", id, err)
	}

	var (
		firstID  int64
		firstInc string
		found    bool
		accepted bool
	)
	for rows.Next() {
		var specID int64
		var includes string
		if err := rows.Scan(&specID, &includes); err != nil {
			rows.Close()
			return model.Domain{}, fmt.Errorf("scan scheme specification: %w", err)
		}
		if !found {
			firstID, firstInc, found = specID, includes, true
		}
		if model.SchemeSpecification(includes).Matches(&url.URL{Scheme: scheme}) {
			accepted = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return model.Domain{}, fmt.Errorf("iterate scheme specifications: %w", err)
	}
	_ = rows.Close()

	if found && !accepted {
		includes := scheme
		if strings.TrimSpace(firstInc) != "" {
			includes = firstInc + "," + scheme
		}
		const update = `UPDATE domain_specifications SET includes = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, update, includes, firstID); err != nil {
			return model.Domain{}, fmt.Errorf("add scheme %q to domain %d: %w", scheme, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Domain{}, fmt.Errorf("commit domain %d: %w", id, err)
	}

	domains, err := loadDomains(ctx, r.db.Writer, owner)
	if err != nil {
		return model.Domain{}, err
	}
	d, ok := domains[id]
	if !ok {
		return model.Domain{}, fmt.Errorf("domain %d not found in store %q", id, owner)
	}
	return d, nil
}

// GetByName returns the domain, or (nil, nil) if it does not exist.
func (r *DomainRepo) GetByName(ctx context.Context, owner, name string) (*model.Domain, error) {
	return r.getByName(ctx, r.db.Reader, owner, name)
}

// List returns owner's domains ordered by name.
func (r *DomainRepo) List(ctx context.Context, owner string) ([]model.Domain, error) {
	domains, err := loadDomains(ctx, r.db.Reader, owner)
	if err != nil {
		return nil, err
	}

	out := make([]model.Domain, 0, len(domains))
	for _, d := range domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *DomainRepo) getByName(ctx context.Context, db *sql.DB, owner, name string) (*model.Domain, error) {
	domains, err := loadDomains(ctx, db, owner)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, nil
}

// loadDomains reads every domain of owner together with its specifications,
// keyed by domain ID.
func loadDomains(ctx context.Context, db *sql.DB, owner string) (map[int64]model.Domain, error) {
	const domainQuery = `SELECT id, owner, name, description, auto_generated, created_at FROM domains WHERE owner = ?`
	rows, err := db.QueryContext(ctx, domainQuery, owner)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	domains := make(map[int64]model.Domain)
	for rows.Next() {
		var d model.Domain
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Owner, &d.Name, &d.Description, &d.AutoGenerated, &createdAt); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for domain %q: %w", d.Name, err)
		}
		domains[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	// Release the connection first: the writer pool holds a single one.
	_ = rows.Close()

	const specQuery = `SELECT s.domain_id, s.kind, s.includes, s.excludes
		FROM domain_specifications s
		JOIN domains d ON d.id = s.domain_id
		WHERE d.owner = ?
		ORDER BY s.domain_id, s.position`
	specRows, err := db.QueryContext(ctx, specQuery, owner)
	if err != nil {
		return nil, fmt.Errorf("list domain specifications: %w", err)
	}
	defer specRows.Close()

	for specRows.Next() {
		var domainID int64
		var spec model.DomainSpecification
		var kind string
		if err := specRows.Scan(&domainID, &kind, &spec.Includes, &spec.Excludes); err != nil {
			return nil, fmt.Errorf("scan domain specification: %w", err)
		}
		spec.Kind = model.SpecificationKind(kind)
		d, ok := domains[domainID]
		if !ok {
			continue
		}
		d.Specifications = append(d.Specifications, spec)
		domains[domainID] = d
	}
	if err := specRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain specifications: %w", err)
	}

	return domains, nil
}
