package protocol

import (
	"fmt"
	"strings"
)

// MaxStatementSQLBytes is the largest SQL text a single Statement may
// carry.
const MaxStatementSQLBytes = 100_000

// MaxStatementParams is the largest number of bind parameters a single
// Statement may carry.
const MaxStatementParams = 999

// ValidateBatch rejects an empty batch and validates every statement in
// it. These are uncoded, permanent validation errors — retrying the same
// request will not help (spec §7).
func ValidateBatch(stmts []Statement) error {
	if len(stmts) == 0 {
		return fmt.Errorf("protocol: batch must contain at least one statement")
	}
	for i, stmt := range stmts {
		if err := ValidateStatement(stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

// ValidateStatement enforces the per-statement size limits and the
// forbidden-pragma check.
func ValidateStatement(stmt Statement) error {
	if len(stmt.SQL) > MaxStatementSQLBytes {
		return fmt.Errorf("SQL text exceeds %d bytes", MaxStatementSQLBytes)
	}
	if len(stmt.Params) > MaxStatementParams {
		return fmt.Errorf("more than %d parameters", MaxStatementParams)
	}
	if strings.Contains(strings.ToUpper(stmt.SQL), "PRAGMA WRITABLE_SCHEMA") {
		return fmt.Errorf("PRAGMA WRITABLE_SCHEMA is forbidden")
	}
	return nil
}
