package cql

import (
	"crypto/md5"
	"strings"
)

// ParseUse returns the keyspace of a "USE <keyspace>" statement.
//
// Quoted identifiers keep their case; unquoted ones are lower-cased the way
// the server does.
func ParseUse(query string) (string, bool) {
	fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "USE") {
		return "", false
	}

	ks := fields[1]
	if len(ks) >= 2 && ks[0] == '"' && ks[len(ks)-1] == '"' {
		return strings.ReplaceAll(ks[1:len(ks)-1], `""`, `"`), true
	}

	return strings.ToLower(ks), true
}

// ParseSchemaChange recognizes DDL statements and describes the change.
//
// Drivers that hide schema change frames use it to report a
// ResponseSchemaChange so the engine waits for schema agreement.
func ParseSchemaChange(query string) (*SchemaChange, bool) {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) < 2 {
		return nil, false
	}

	var change string
	switch strings.ToUpper(fields[0]) {
	case "CREATE":
		change = "CREATED"
	case "ALTER":
		change = "UPDATED"
	case "DROP":
		change = "DROPPED"
	default:
		return nil, false
	}

	target := strings.ToUpper(fields[1])
	switch target {
	case "KEYSPACE", "TABLE", "TYPE", "FUNCTION", "AGGREGATE", "INDEX":
	case "COLUMNFAMILY", "MATERIALIZED", "CUSTOM":
		target = "TABLE"
	default:
		return nil, false
	}

	sc := &SchemaChange{Change: change, Target: target}
	if name, ok := ddlName(fields[2:]); ok {
		if ks, rest, found := strings.Cut(name, "."); found {
			sc.Keyspace, sc.Name = ks, rest
		} else if target == "KEYSPACE" {
			sc.Keyspace = name
		} else {
			sc.Name = name
		}
	}

	return sc, true
}

// ddlName skips modifiers ("IF NOT EXISTS", "VIEW", "INDEX") and returns
// the object name.
func ddlName(fields []string) (string, bool) {
	for _, f := range fields {
		switch strings.ToUpper(f) {
		case "IF", "NOT", "EXISTS", "VIEW", "INDEX":
			continue
		}
		name := strings.TrimRight(f, "(;")
		name = strings.ReplaceAll(name, `"`, "")

		return name, name != ""
	}

	return "", false
}

// PreparedID derives a stable statement ID from the query text.
//
// Drivers that prepare implicitly do not expose the server ID; the MD5 of
// the query is what the server uses as well.
func PreparedID(query string) []byte {
	sum := md5.Sum([]byte(query)) //nolint:gosec // statement identity, not security

	return sum[:]
}
