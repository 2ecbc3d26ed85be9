//go:build purego || !cgo

package dgsqlite

import (
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	sqliteDriverType = "sqlite"
	sqliteBuildType  = "purego"
)

func isPrimaryKeyConstraintError(e error) bool {
	var sErr *sqlite.Error
	if !errors.As(e, &sErr) {
		return false
	}

	// The pure Go driver only exposes the extended code, under the "Code()" function.
	return sErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}
