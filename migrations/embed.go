// Package migrations встраивает SQL-миграции схемы.
package migrations

import "embed"

// FS содержит встроенные файлы миграций.
//
//go:embed *.sql
var FS embed.FS
