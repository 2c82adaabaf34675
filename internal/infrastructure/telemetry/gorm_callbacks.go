package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type queryStartKey struct{}

// registerQueryCallbacks hooks before and after every GORM operation under prefix.
// after receives the SQL verb for the operation.
func registerQueryCallbacks(db *gorm.DB, prefix string, after func(db *gorm.DB, operation string)) error {
	cb := db.Callback()
	op := func(operation string) func(*gorm.DB) {
		return func(db *gorm.DB) {
			if operation == "" {
				after(db, detectOperationType(db.Statement.SQL.String()))
				return
			}
			after(db, operation)
		}
	}
	return errors.Join(
		cb.Create().Before("gorm:create").Register(prefix+":before_create", markQueryStart),
		cb.Query().Before("gorm:query").Register(prefix+":before_query", markQueryStart),
		cb.Update().Before("gorm:update").Register(prefix+":before_update", markQueryStart),
		cb.Delete().Before("gorm:delete").Register(prefix+":before_delete", markQueryStart),
		cb.Row().Before("gorm:row").Register(prefix+":before_row", markQueryStart),
		cb.Raw().Before("gorm:raw").Register(prefix+":before_raw", markQueryStart),
		cb.Create().After("gorm:create").Register(prefix+":after_create", op("INSERT")),
		cb.Query().After("gorm:query").Register(prefix+":after_query", op("SELECT")),
		cb.Update().After("gorm:update").Register(prefix+":after_update", op("UPDATE")),
		cb.Delete().After("gorm:delete").Register(prefix+":after_delete", op("DELETE")),
		cb.Row().After("gorm:row").Register(prefix+":after_row", op("")),
		cb.Raw().After("gorm:raw").Register(prefix+":after_raw", op("")),
	)
}

func markQueryStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		return
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

// queryElapsed returns the time since markQueryStart ran for this statement.
func queryElapsed(db *gorm.DB) (time.Duration, bool) {
	if db.Statement.Context == nil {
		return 0, false
	}
	start, ok := db.Statement.Context.Value(queryStartKey{}).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

func detectOperationType(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}
