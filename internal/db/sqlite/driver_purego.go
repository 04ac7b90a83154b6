//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite" // register driver
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)
