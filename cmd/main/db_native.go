//go:build !cgo_sqlite

package main

import (
	_ "modernc.org/sqlite"
)

const sqlDriver = "sqlite"
