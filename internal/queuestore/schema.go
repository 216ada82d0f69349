package queuestore

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeTableChar = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// tableName derives the per-parent-domain table name, mirroring
// subdomains_registrar.py's "queue_{}".format(domain.replace('.', '_'))
// but sanitizing the full character set a domain name may contain
// rather than only dots.
func tableName(parentDomain string) string {
	sanitized := unsafeTableChar.ReplaceAllString(strings.ToLower(parentDomain), "_")
	return "queue_" + sanitized
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		received_at INTEGER PRIMARY KEY,
		subdomain_name TEXT NOT NULL,
		payload BLOB NOT NULL,
		commit_state TEXT NOT NULL DEFAULT 'PENDING',
		detail TEXT NOT NULL DEFAULT ''
	)`, table)
}

func createIndexSQL(table string) string {
	return fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_subdomain_name ON %s (subdomain_name)`, table, table)
}
