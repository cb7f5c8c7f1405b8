package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", raw)
	}
}

// driverName is the database/sql driver registered for d.
func (d Dialect) driverName() string {
	return string(d)
}

// rebind rewrites ? placeholders for drivers that number them.
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema(scans, findings string) []string {
	switch d {
	case DialectMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + scans + ` (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				created_at BIGINT NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'running',
				total_pages INT NOT NULL DEFAULT 0,
				total_links INT NOT NULL DEFAULT 0,
				broken_links INT NOT NULL DEFAULT 0,
				scan_config TEXT,
				completed_at BIGINT NULL,
				INDEX idx_status (status)
			)`,
			`CREATE TABLE IF NOT EXISTS ` + findings + ` (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				scan_id BIGINT NOT NULL,
				source_url TEXT NOT NULL,
				target_url TEXT NOT NULL,
				link_text TEXT,
				status_code INT NOT NULL DEFAULT 0,
				error_message TEXT,
				is_broken BOOLEAN NOT NULL DEFAULT FALSE,
				is_fixed BOOLEAN NOT NULL DEFAULT FALSE,
				found_at BIGINT NOT NULL,
				INDEX idx_scan_id (scan_id),
				INDEX idx_is_broken (is_broken),
				FOREIGN KEY (scan_id) REFERENCES ` + scans + `(id)
			)`,
		}
	case DialectPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + scans + ` (
				id BIGSERIAL PRIMARY KEY,
				created_at BIGINT NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'running',
				total_pages INTEGER NOT NULL DEFAULT 0,
				total_links INTEGER NOT NULL DEFAULT 0,
				broken_links INTEGER NOT NULL DEFAULT 0,
				scan_config TEXT,
				completed_at BIGINT
			)`,
			`CREATE TABLE IF NOT EXISTS ` + findings + ` (
				id BIGSERIAL PRIMARY KEY,
				scan_id BIGINT NOT NULL REFERENCES ` + scans + `(id),
				source_url TEXT NOT NULL,
				target_url TEXT NOT NULL,
				link_text TEXT,
				status_code INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				is_broken BOOLEAN NOT NULL DEFAULT FALSE,
				is_fixed BOOLEAN NOT NULL DEFAULT FALSE,
				found_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS ` + findings + `_scan_id_idx ON ` + findings + `(scan_id)`,
			`CREATE INDEX IF NOT EXISTS ` + findings + `_is_broken_idx ON ` + findings + `(is_broken)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + scans + ` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'running',
				total_pages INTEGER NOT NULL DEFAULT 0,
				total_links INTEGER NOT NULL DEFAULT 0,
				broken_links INTEGER NOT NULL DEFAULT 0,
				scan_config TEXT,
				completed_at INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS ` + findings + ` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id INTEGER NOT NULL REFERENCES ` + scans + `(id),
				source_url TEXT NOT NULL,
				target_url TEXT NOT NULL,
				link_text TEXT,
				status_code INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				is_broken INTEGER NOT NULL DEFAULT 0,
				is_fixed INTEGER NOT NULL DEFAULT 0,
				found_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS ` + findings + `_scan_id_idx ON ` + findings + `(scan_id)`,
			`CREATE INDEX IF NOT EXISTS ` + findings + `_is_broken_idx ON ` + findings + `(is_broken)`,
		}
	}
}
