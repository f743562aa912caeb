// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package postgres

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/poiesic/engram/storage"
)

// Migration is one versioned schema change. UpSQL is required; DownSQL is
// optional and only needed when the version must be rolled back.
type Migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// HasDown reports whether the migration can be rolled back.
func (m Migration) HasDown() bool {
	return strings.TrimSpace(m.DownSQL) != ""
}

// Migration files follow {version}_{name}[.up|.down].sql. A bare .sql file
// is forward-only unless it contains "-- migrate:up" / "-- migrate:down"
// section markers.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+?)(\.(up|down))?\.sql$`)

const (
	upMarker   = "-- migrate:up"
	downMarker = "-- migrate:down"
)

// LoadMigrations discovers migration units in fsys and returns them sorted
// by ascending version. Any version without forward SQL is a fatal
// configuration error.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		m := migrationFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("migration file %q does not match {version}_{name}[.up|.down].sql", entry.Name())
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration file %q: invalid version: %w", entry.Name(), err)
		}
		name := m[2]
		direction := m[4]

		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %q: %w", entry.Name(), err)
		}
		content := string(raw)

		unit := byVersion[version]
		if unit == nil {
			unit = &Migration{Version: version, Name: name}
			byVersion[version] = unit
		} else if unit.Name != name {
			return nil, fmt.Errorf("migration version %d has conflicting names %q and %q", version, unit.Name, name)
		}

		switch direction {
		case "up":
			if unit.UpSQL != "" {
				return nil, fmt.Errorf("migration version %d has multiple forward definitions", version)
			}
			unit.UpSQL = content
		case "down":
			if unit.DownSQL != "" {
				return nil, fmt.Errorf("migration version %d has multiple backward definitions", version)
			}
			unit.DownSQL = content
		default:
			// Bare .sql file: sectioned if it carries markers, else forward-only.
			up, down := splitSections(content)
			if unit.UpSQL != "" {
				return nil, fmt.Errorf("migration version %d has multiple forward definitions", version)
			}
			unit.UpSQL = up
			if down != "" {
				if unit.DownSQL != "" {
					return nil, fmt.Errorf("migration version %d has multiple backward definitions", version)
				}
				unit.DownSQL = down
			}
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, unit := range byVersion {
		if strings.TrimSpace(unit.UpSQL) == "" {
			return nil, fmt.Errorf("migration version %d (%s): %w", unit.Version, unit.Name, storage.ErrNoForwardSQL)
		}
		migrations = append(migrations, *unit)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// splitSections splits a sectioned migration file into its forward and
// backward parts. Files without markers are returned whole as forward SQL.
func splitSections(content string) (up, down string) {
	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)

	if upIdx < 0 && downIdx < 0 {
		return content, ""
	}

	if downIdx < 0 {
		return content[upIdx+len(upMarker):], ""
	}
	if upIdx < 0 {
		return "", content[downIdx+len(downMarker):]
	}
	if upIdx < downIdx {
		return content[upIdx+len(upMarker) : downIdx], content[downIdx+len(downMarker):]
	}
	return content[upIdx+len(upMarker):], content[downIdx+len(downMarker) : upIdx]
}
