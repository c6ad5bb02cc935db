// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CheckMode selects the integrity pragma.
type CheckMode string

const (
	QuickCheck CheckMode = "quick" // PRAGMA quick_check
	FullCheck  CheckMode = "full"  // PRAGMA integrity_check
)

func (m CheckMode) pragma() string {
	if m == FullCheck {
		return "PRAGMA integrity_check"
	}
	return "PRAGMA quick_check"
}

// Check runs an integrity pragma on db. A healthy database yields no issues.
func Check(ctx context.Context, db *sql.DB, mode CheckMode) ([]string, error) {
	rows, err := db.QueryContext(ctx, mode.pragma())
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s check failed: %w", mode, err)
	}
	defer rows.Close()

	var issues []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s check row: %w", mode, err)
		}
		if !strings.EqualFold(line, "ok") {
			issues = append(issues, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s check failed: %w", mode, err)
	}
	return issues, nil
}

// VerifyFile opens the database at path read-only and checks it.
func VerifyFile(ctx context.Context, path string, mode CheckMode) ([]string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s for verification: %w", path, err)
	}
	defer db.Close()
	return Check(ctx, db, mode)
}
