package runtime

import (
	"context"
	"testing"

	"github.com/forbearing/sqlwhitelist/internal/dbexec"
	"github.com/forbearing/sqlwhitelist/internal/query"
	"github.com/forbearing/sqlwhitelist/internal/wire"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openHostDB(t *testing.T) *dbexec.Executor {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)").Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("INSERT INTO widgets (id, name) VALUES (1, 'cog')").Error; err != nil {
		t.Fatal(err)
	}
	exec, err := dbexec.New(db, dbexec.DialectSQLite)
	if err != nil {
		t.Fatal(err)
	}
	return exec
}

// TestTenantQueryRoundTripsThroughDBHost drives a full two-tick cycle: a
// registered task issues ExecuteQuery against a dynamic statement, the
// resulting Query message is executed for real against a sqlite-backed
// dbexec.Executor by DBHost, and the produced Resume slot is fed back into
// the runtime's next tick, completing the original request with a
// CallResult carrying the row data.
func TestTenantQueryRoundTripsThroughDBHost(t *testing.T) {
	exec := openHostDB(t)
	host := NewDBHost(exec, query.NewWhitelist())

	rt := New(7)
	var gotPending *Pending
	rt.Register("listWidgets", func(ctx *Context, arg any) (any, error) {
		p, err := ctx.ExecuteQuery(query.Unescaped("select id, name from widgets"), nil)
		gotPending = p
		return p, err
	})

	rt.RunTasks([]wire.InboxSlot{newTickSlot(42, "listWidgets", nil)}, 0, 1000)
	if gotPending == nil {
		t.Fatal("expected ExecuteQuery to return a Pending")
	}

	queryMsg, ok := rt.outbox.Slots()[0].Arg1.(QueryMessage)
	if !ok {
		t.Fatalf("Arg1 is %T, want QueryMessage", rt.outbox.Slots()[0].Arg1)
	}

	resumeSlot := host.Execute(context.Background(), 42, gotPending.SubtaskID, queryMsg)
	if !resumeSlot.IsSubtaskCompletion() {
		t.Fatal("expected host.Execute to return a subtask-completion slot")
	}

	rt.RunTasks([]wire.InboxSlot{resumeSlot}, 0, 1001)

	final := rt.outbox.Slots()[0]
	if wire.UnpackMsgType(final.RequestIDWithMsgType) != wire.MsgCallResult {
		t.Fatalf("msgType = %v, want CallResult", wire.UnpackMsgType(final.RequestIDWithMsgType))
	}
	rows, ok := final.Arg1.([]map[string]any)
	if !ok || len(rows) != 1 || rows[0]["name"] != "cog" {
		t.Fatalf("unexpected result rows: %#v", final.Arg1)
	}
}
