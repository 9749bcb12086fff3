// Package migrations содержит SQL миграции PostgreSQL хранилища сцен (goose).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
