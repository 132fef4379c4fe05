package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestSQLiteErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		busy     bool
		locked   bool
		conflict bool
	}{
		{name: "nil", err: nil},
		{name: "busy", err: errors.New("SQLITE_BUSY: database is busy"), busy: true, conflict: true},
		{name: "locked", err: errors.New("database is locked (5)"), locked: true, conflict: true},
		{name: "wrapped busy", err: fmt.Errorf("save session: %w", errors.New("SQLITE_BUSY")), busy: true, conflict: true},
		{name: "constraint", err: errors.New("UNIQUE constraint failed: sessions.id")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteBusyError(tt.err); got != tt.busy {
				t.Errorf("IsSQLiteBusyError() = %v, want %v", got, tt.busy)
			}
			if got := IsSQLiteLockedError(tt.err); got != tt.locked {
				t.Errorf("IsSQLiteLockedError() = %v, want %v", got, tt.locked)
			}
			if got := IsSQLiteConflictError(tt.err); got != tt.conflict {
				t.Errorf("IsSQLiteConflictError() = %v, want %v", got, tt.conflict)
			}
		})
	}
}
