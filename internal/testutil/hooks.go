package testutil

import (
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AfterFirstQuery runs fn once, right after the first SELECT against table
// has finished. Queries issued by fn itself do not trigger it again. The
// hook is removed when the test ends.
func AfterFirstQuery(t *testing.T, db *gorm.DB, table string, fn func()) {
	var fired atomic.Bool
	name := "testutil:after_first_query:" + uuid.NewString()

	err := db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != table || tx.Error != nil {
			return
		}
		if fired.CompareAndSwap(false, true) {
			fn()
		}
	})
	if err != nil {
		t.Fatalf("Failed to register query hook: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Callback().Query().Remove(name)
	})
}
