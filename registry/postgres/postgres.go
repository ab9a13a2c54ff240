// Package postgres implements the registry.Client interface against a
// Postgres-backed metadata store, the shape queried by the original registry
// crawler: a versions table and a dependencies table.
package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cvereach/cvereach"
	"github.com/cvereach/cvereach/registry"
)

var dialect = goqu.Dialect("postgres")

var queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "cvereach",
	Subsystem: "registry",
	Name:      "query_duration_seconds",
	Help:      "Duration of registry metadata queries, by query name.",
}, []string{"query", "success"})

// Client queries the registry metadata store over a pooled Postgres
// connection.
type Client struct {
	pool *pgxpool.Pool
}

var _ registry.Client = (*Client)(nil)

// New constructs a Client from an already-configured pool. The pool's
// acquisition timeout, if any, bounds every query issued through Client.
func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// VersionsOf implements registry.Client.
func (c *Client) VersionsOf(ctx context.Context, name string) (out []string, err error) {
	start := time.Now()
	defer func() {
		queryLatency.WithLabelValues("versions_of", successLabel(err)).
			Observe(time.Since(start).Seconds())
	}()

	query, args, err := dialect.From("versions").
		Select("version").
		Where(goqu.C("crate").Eq(name)).
		Order(goqu.C("id").Desc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, &cvereach.Error{
			Op: "registry/postgres: versions_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
		}
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &cvereach.Error{
			Op: "registry/postgres: versions_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
		}
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &cvereach.Error{
				Op: "registry/postgres: versions_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
			}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &cvereach.Error{
			Op: "registry/postgres: versions_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
		}
	}
	return out, nil
}

// DependentsOf implements registry.Client.
func (c *Client) DependentsOf(ctx context.Context, name string) (out []cvereach.ReverseDependencyRecord, err error) {
	start := time.Now()
	defer func() {
		queryLatency.WithLabelValues("dependents_of", successLabel(err)).
			Observe(time.Since(start).Seconds())
	}()

	query, args, err := dialect.From("dependencies").
		Select("dependent_name", "dependent_version", "requirement").
		Where(
			goqu.C("target").Eq(name),
			goqu.C("requirement").IsNotNull(),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, &cvereach.Error{
			Op: "registry/postgres: dependents_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
		}
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &cvereach.Error{
			Op: "registry/postgres: dependents_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
		}
	}
	defer rows.Close()

	for rows.Next() {
		var rec cvereach.ReverseDependencyRecord
		if err := rows.Scan(&rec.DependentName, &rec.DependentVersion, &rec.Requirement); err != nil {
			// A malformed row is skipped, not fatal to the whole query.
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &cvereach.Error{
			Op: "registry/postgres: dependents_of", Kind: cvereach.ErrRegistryUnavailable, Inner: err,
		}
	}
	return out, nil
}

func successLabel(err error) string {
	if err == nil {
		return "true"
	}
	return "false"
}
