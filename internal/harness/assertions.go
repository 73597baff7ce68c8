package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/store"
)

// ledgerTables lists the tables and columns final_state and row_count may
// name. Nothing outside it is interpolated into SQL.
var ledgerTables = map[string][]string{
	"events": {
		"uid", "fingerprint", "group_code", "kind", "starts_at", "ends_at", "all_day",
		"note", "status", "created_at", "last_seen_at", "removed_at",
	},
	"cycles": {
		"id", "started_at", "finished_at", "observed", "accepted", "duplicates",
		"rejected", "created", "refreshed", "removed",
	},
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Ledger   []outage.Event // Ledger for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Ledger) > 0 {
		fmt.Fprintf(&buf, "\nLedger:\n")
		for i, ev := range e.Ledger {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %s-%s\n", i+1, ev.UID, ev.Status, ev.Group,
				ev.Start.UTC().Format("2006-01-02T15:04Z"), ev.End.UTC().Format("2006-01-02T15:04Z"))
		}
	}

	return buf.String()
}

// assertActiveCount checks the number of active events, optionally in one group.
func assertActiveCount(ledger []outage.Event, assertion Assertion) error {
	count := 0
	for _, ev := range ledger {
		if !ev.Active() {
			continue
		}
		if assertion.Group != "" && string(ev.Group) != assertion.Group {
			continue
		}
		count++
	}

	if count != assertion.Count {
		scope := "all groups"
		if assertion.Group != "" {
			scope = "group " + assertion.Group
		}
		return &AssertionError{
			Type:     AssertActiveCount,
			Expected: fmt.Sprintf("%d active events in %s", assertion.Count, scope),
			Actual:   fmt.Sprintf("%d active events", count),
			Ledger:   ledger,
		}
	}
	return nil
}

// assertChanges checks the exact UIDs a cycle step created, refreshed and removed.
func assertChanges(result *Result, assertion Assertion) error {
	trace, ok := result.Step(assertion.Step)
	if !ok {
		return fmt.Errorf("changes assertion: no step %d", assertion.Step)
	}
	if trace.Do != StepCycle {
		return fmt.Errorf("changes assertion: step %d is a %s step", assertion.Step, trace.Do)
	}

	for _, c := range []struct {
		name     string
		expected []string
		actual   []string
	}{
		{"created", assertion.Created, trace.Created},
		{"refreshed", assertion.Refreshed, trace.Refreshed},
		{"removed", assertion.Removed, trace.Removed},
	} {
		want := slices.Clone(c.expected)
		sort.Strings(want)
		if !slices.Equal(want, c.actual) {
			return &AssertionError{
				Type:     AssertChanges,
				Expected: fmt.Sprintf("step %d %s %v", assertion.Step, c.name, want),
				Actual:   fmt.Sprintf("%v", c.actual),
				Ledger:   result.Ledger,
			}
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds the expected values (subset semantics).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Table, assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{})
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Sorted so the first reported mismatch is deterministic.
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !ledgerValueEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// assertRowCount checks how many rows of the table match Where.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	whereSQL, whereArgs, err := buildWhereClause(assertion.Table, assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	var count int
	if err := st.DB().QueryRowContext(ctx, query, whereArgs...).Scan(&count); err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// buildWhereClause checks table and the Where columns against ledgerTables
// and returns a parameterized condition with keys in sorted order.
func buildWhereClause(table string, where map[string]interface{}) (string, []interface{}, error) {
	columns, ok := ledgerTables[table]
	if !ok {
		return "", nil, fmt.Errorf("invalid table name %q: want events or cycles", table)
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if !slices.Contains(columns, key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause for %s", key, table)
		}
		v, ok := ledgerValue(where[key])
		if !ok {
			return "", nil, fmt.Errorf("unsupported value %v (%T) for column %q", where[key], where[key], key)
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, v)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

// ledgerValue maps a YAML scalar or a SQLite column value to the form the
// ledger stores: text as string, integers and booleans as int64.
func ledgerValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case string:
		return val, true
	case []byte:
		return string(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case bool:
		if val {
			return int64(1), true
		}
		return int64(0), true
	}
	return nil, false
}

// ledgerValueEqual compares an expected YAML value with a scanned column.
func ledgerValueEqual(expected, actual interface{}) bool {
	e, ok := ledgerValue(expected)
	if !ok {
		return false
	}
	a, ok := ledgerValue(actual)
	return ok && e == a
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state and row_count.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertActiveCount:
			err = assertActiveCount(result.Ledger, assertion)
		case AssertChanges:
			err = assertChanges(result, assertion)
		case AssertFinalState, AssertRowCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
