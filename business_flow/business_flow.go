package businessflow

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/repository"
)

// runInTransaction wraps fn in a database transaction. A nil db means the
// backing store has no transaction support (in-memory adapter); fn then runs
// directly and each repository call is its own effect.
func runInTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) error {
	if db == nil {
		return fn(ctx)
	}
	return repository.WithTransaction(ctx, db, fn)
}

func uintKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// joinPresent concatenates the non-empty parts with single spaces
func joinPresent(parts ...string) string {
	var present []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			present = append(present, p)
		}
	}
	return strings.Join(present, " ")
}
