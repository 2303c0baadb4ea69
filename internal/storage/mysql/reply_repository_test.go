package mysql

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"AgentKit/deploy/migrations"
	"AgentKit/internal/config"
)

func TestMemoryReplyRepositoryPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewMemoryReplyRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	first := &ReplyRecord{MentionID: "t1", Success: true, Message: "Successfully replied to tweet", TweetID: "r1", CreatedAt: 10}
	second := &ReplyRecord{MentionID: "t2", Success: false, Message: "Failed to respond to mention", Error: "rate limit exceeded", CreatedAt: 20}
	for _, rec := range []*ReplyRecord{first, second} {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids not assigned sequentially: %d %d", first.ID, second.ID)
	}

	restored, err := NewMemoryReplyRepository(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	list, err := restored.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []ReplyRecord{*second, *first}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Fatalf("restored records mismatch (-want +got):\n%s", diff)
	}

	third := &ReplyRecord{MentionID: "t3", NoOp: true, CreatedAt: 30}
	if err := restored.Save(ctx, third); err != nil {
		t.Fatalf("save after restart failed: %v", err)
	}
	if third.ID != 3 {
		t.Fatalf("id sequence not restored, got %d", third.ID)
	}
	limited, _ := restored.ListLatest(ctx, 1)
	if len(limited) != 1 || limited[0].MentionID != "t3" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}
}

func TestNewSelectsDriver(t *testing.T) {
	repo, err := New(context.Background(), config.ReplyStoreConfig{Driver: "memory"}, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.(*MemoryReplyRepository); !ok {
		t.Fatalf("expected memory repository, got %T", repo)
	}
	if _, err := New(context.Background(), config.ReplyStoreConfig{Driver: "pebble"}, t.TempDir()); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := New(context.Background(), config.ReplyStoreConfig{Driver: "mysql"}, t.TempDir()); err == nil {
		t.Fatalf("expected empty dsn error")
	}
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := normalizeDSN("agent:secret@tcp(127.0.0.1:3306)/agentkit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"charset=utf8mb4", "timeout=5s"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in %q", want, dsn)
		}
	}
	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSQLReplyRepositorySave(t *testing.T) {
	db, drv := newScriptDB(t, execOp(insertReplySQL, scriptedResult{lastInsertID: 42, rowsAffected: 1}))
	repo := &SQLReplyRepository{db: db}

	rec := &ReplyRecord{MentionID: "t1", Success: true, Message: "Successfully replied to tweet", TweetID: "r1", Text: "gm", CreatedAt: 99}
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if rec.ID != 42 {
		t.Fatalf("expected id 42, got %d", rec.ID)
	}
	want := []driver.Value{"t1", true, false, "Successfully replied to tweet", "r1", "", "gm", int64(99)}
	if diff := cmp.Diff(want, drv.seen[0]); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestSQLReplyRepositoryListLatest(t *testing.T) {
	columns := []string{"id", "mention_id", "success", "no_op", "message", "tweet_id", "error_message", "reply_text", "created_at"}
	db, _ := newScriptDB(t, queryOp(listRepliesSQL, columns,
		[]driver.Value{int64(2), "t2", int64(0), int64(0), "Failed to respond to mention", "", "rate limit exceeded", "", int64(20)},
		[]driver.Value{int64(1), "t1", int64(1), int64(0), "Successfully replied to tweet", "r1", "", "gm", int64(10)},
	))
	repo := &SQLReplyRepository{db: db}

	list, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []ReplyRecord{
		{ID: 2, MentionID: "t2", Message: "Failed to respond to mention", Error: "rate limit exceeded", CreatedAt: 20},
		{ID: 1, MentionID: "t1", Success: true, Message: "Successfully replied to tweet", TweetID: "r1", Text: "gm", CreatedAt: 10},
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestSQLReplyRepositoryRunMigrations(t *testing.T) {
	pending, err := loadMigrations(migrations.Files)
	if err != nil || len(pending) == 0 {
		t.Fatalf("expected embedded migrations, got %v %v", pending, err)
	}
	if pending[0].version != "0001" {
		t.Fatalf("unexpected version %q", pending[0].version)
	}

	ops := []scriptedOp{
		execOp(createMigrationsTableSQL, scriptedResult{}),
		queryOp(`SELECT version FROM schema_migrations`, []string{"version"}),
		beginOp(),
	}
	for _, stmt := range pending[0].statements {
		ops = append(ops, execOp(stmt, scriptedResult{}))
	}
	ops = append(ops,
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, scriptedResult{rowsAffected: 1}),
		commitOp(),
	)
	db, _ := newScriptDB(t, ops...)
	repo := &SQLReplyRepository{db: db}
	if err := repo.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	db, _ := newScriptDB(t,
		execOp(createMigrationsTableSQL, scriptedResult{}),
		queryOp(`SELECT version FROM schema_migrations`, []string{"version"}, []driver.Value{"0001"}),
	)
	repo := &SQLReplyRepository{db: db}
	if err := repo.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}
