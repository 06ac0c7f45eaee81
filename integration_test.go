//go:build integration
// +build integration

package pebblepermanent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/migration"
	"github.com/marshallshelly/pebble-permanent/pkg/permanent"
	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store/pgstore"
)

// Test models
type Author struct {
	ID    int64  `po:"id,primaryKey,bigserial"`
	Name  string `po:"name,varchar(100),notNull"`
	Email string `po:"email,varchar(255),unique,notNull"`
	schema.Permanent
}

func (Author) RestoreOnCreate() bool { return true }

type Article struct {
	ID       int64  `po:"id,primaryKey,bigserial"`
	Title    string `po:"title,varchar(255),notNull"`
	AuthorID int64  `po:"author_id,notNull,fk:author(id),onDelete:cascade"`
	schema.Permanent
}

type Reply struct {
	ID        int64  `po:"id,primaryKey,bigserial"`
	Body      string `po:"body,text,notNull"`
	ArticleID int64  `po:"article_id,notNull,fk:article(id),onDelete:cascade"`
	AuthorID  *int64 `po:"author_id,fk:author(id),onDelete:setnull"`
	schema.Permanent
}

type env struct {
	engine   *permanent.Engine
	authors  *permanent.Manager[Author]
	articles *permanent.Manager[Article]
	replies  *permanent.Manager[Reply]
}

// setupTestDB creates a PostgreSQL container and returns its connection string
func setupTestDB(t *testing.T) (string, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return connStr, cleanup
}

// setupEngine connects, creates the schema of the test models and builds an engine on it
func setupEngine(t *testing.T) *env {
	t.Helper()
	connStr, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	db, err := runtime.ConnectWithURL(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(db.Close)

	reg := registry.NewRegistry()
	for _, m := range []any{Author{}, Article{}, Reply{}} {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Failed to register %T: %v", m, err)
		}
	}

	engine, err := permanent.New(pgstore.FromDB(db), reg)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}

	s := migration.NewPlanner().Plan(engine.Graph())
	if err := migration.NewExecutor(db.Pool()).Apply(ctx, s); err != nil {
		t.Fatalf("Failed to create schema: %v\n%s", err, s.UpSQL())
	}

	e := &env{engine: engine}
	if e.authors, err = permanent.NewManager[Author](engine); err != nil {
		t.Fatal(err)
	}
	if e.articles, err = permanent.NewManager[Article](engine); err != nil {
		t.Fatal(err)
	}
	if e.replies, err = permanent.NewManager[Reply](engine); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) seed(t *testing.T, name, email string, articles int) *Author {
	t.Helper()
	ctx := context.Background()

	author := &Author{Name: name, Email: email}
	if err := e.authors.Create(ctx, author); err != nil {
		t.Fatalf("Failed to create author: %v", err)
	}
	for i := 0; i < articles; i++ {
		article := &Article{Title: name + " writes", AuthorID: author.ID}
		if err := e.articles.Create(ctx, article); err != nil {
			t.Fatalf("Failed to create article: %v", err)
		}
		reply := &Reply{Body: "reply", ArticleID: article.ID, AuthorID: &author.ID}
		if err := e.replies.Create(ctx, reply); err != nil {
			t.Fatalf("Failed to create reply: %v", err)
		}
	}
	return author
}

func count[T any](t *testing.T, qs *permanent.QuerySet[T]) int64 {
	t.Helper()
	n, err := qs.Count(context.Background())
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	return n
}

func TestIntegration_SoftDelete(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	alice := e.seed(t, "Alice", "alice@example.com", 2)

	t.Run("Cascade stamps dependents", func(t *testing.T) {
		res, err := e.authors.Delete(ctx, alice, false)
		if err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if res.Total != 5 {
			t.Errorf("Expected 5 rows stamped, got %d (%v)", res.Total, res.PerModel)
		}
		if res.PerModel["article"] != 2 || res.PerModel["reply"] != 2 {
			t.Errorf("Unexpected per-model counts %v", res.PerModel)
		}
		if !alice.IsRemoved() {
			t.Error("Expected the record to carry its removed stamp")
		}

		if n := count(t, e.articles.Objects()); n != 0 {
			t.Errorf("Expected 0 live articles, got %d", n)
		}
		if n := count(t, e.articles.Deleted()); n != 2 {
			t.Errorf("Expected 2 deleted articles, got %d", n)
		}
		if n := count(t, e.replies.All()); n != 2 {
			t.Errorf("Expected replies to stay stored, got %d", n)
		}

		article, err := e.articles.Deleted().First(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !article.Removed.Equal(*alice.Removed) {
			t.Errorf("Expected one stamp for the whole delete, got %v and %v", article.Removed, alice.Removed)
		}
	})

	t.Run("Restore", func(t *testing.T) {
		if err := e.authors.Restore(ctx, alice); err != nil {
			t.Fatalf("Failed to restore: %v", err)
		}
		if alice.IsRemoved() {
			t.Error("Expected the restored record to be live")
		}
		if n := count(t, e.articles.Objects()); n != 0 {
			t.Errorf("Restore should not touch dependents, got %d live articles", n)
		}

		n, err := e.articles.Deleted().Filter(builder.Eq("author_id", alice.ID)).Restore(ctx)
		if err != nil {
			t.Fatalf("Failed to restore articles: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 restored articles, got %d", n)
		}
		if n := count(t, e.articles.Objects()); n != 2 {
			t.Errorf("Expected 2 live articles, got %d", n)
		}
	})
}

func TestIntegration_SetNull(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	bob := e.seed(t, "Bob", "bob@example.com", 1)
	carol := e.seed(t, "Carol", "carol@example.com", 0)

	article, err := e.articles.Objects().Filter(builder.Eq("author_id", bob.ID)).Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	reply := &Reply{Body: "from carol", ArticleID: article.ID, AuthorID: &carol.ID}
	if err := e.replies.Create(ctx, reply); err != nil {
		t.Fatal(err)
	}

	if _, err := e.authors.Delete(ctx, carol, false); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	got, err := e.replies.Objects().Filter(builder.Eq("id", reply.ID)).Get(ctx)
	if err != nil {
		t.Fatalf("Expected the reply to stay live: %v", err)
	}
	if got.AuthorID != nil {
		t.Errorf("Expected author_id to be cleared, got %d", *got.AuthorID)
	}
}

func TestIntegration_ForceDelete(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	dave := e.seed(t, "Dave", "dave@example.com", 2)
	id := dave.ID

	res, err := e.authors.Delete(ctx, dave, true)
	if err != nil {
		t.Fatalf("Failed to force delete: %v", err)
	}
	if res.Total != 5 {
		t.Errorf("Expected 5 rows removed, got %d (%v)", res.Total, res.PerModel)
	}
	if dave.ID != 0 {
		t.Errorf("Expected the primary key to be cleared, got %d", dave.ID)
	}

	exists, err := e.authors.All().Filter(builder.Eq("id", id)).Exists(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("Expected the author to be gone")
	}
	if n := count(t, e.replies.All()); n != 0 {
		t.Errorf("Expected replies to be gone, got %d", n)
	}
}

func TestIntegration_GetRestoreOrCreate(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	key := map[string]any{"email": "erin@example.com"}

	erin, created, err := e.authors.GetRestoreOrCreate(ctx, key, Author{Name: "Erin"})
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	if !created || erin.Email != "erin@example.com" {
		t.Errorf("Expected a new author with the key applied, got %+v (created %v)", erin, created)
	}

	if _, err := e.authors.Delete(ctx, erin, false); err != nil {
		t.Fatal(err)
	}

	again, created, err := e.authors.GetRestoreOrCreate(ctx, key, Author{Name: "Other"})
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if created || again.ID != erin.ID || again.IsRemoved() {
		t.Errorf("Expected the deleted author back, got %+v (created %v)", again, created)
	}

	t.Run("Create restores on a unique collision", func(t *testing.T) {
		if _, err := e.authors.Delete(ctx, again, false); err != nil {
			t.Fatal(err)
		}
		back := &Author{Name: "Erin Again", Email: "erin@example.com"}
		if err := e.authors.Create(ctx, back); err != nil {
			t.Fatalf("Failed to create: %v", err)
		}
		if back.ID != erin.ID || back.IsRemoved() {
			t.Errorf("Expected the deleted row to be restored, got %+v", back)
		}

		dup := &Author{Name: "Dup", Email: "erin@example.com"}
		if err := e.authors.Create(ctx, dup); !errors.Is(err, runtime.ErrDuplicateKey) {
			t.Errorf("Expected ErrDuplicateKey for a live collision, got %v", err)
		}
	})
}

func TestIntegration_Transactions(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	frank := e.seed(t, "Frank", "frank@example.com", 1)
	boom := errors.New("boom")

	err := e.engine.Atomic(ctx, func(ctx context.Context, tx *permanent.Engine) error {
		if _, err := tx.DeleteRecord(ctx, frank, false); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}
	if n := count(t, e.articles.Objects()); n != 1 {
		t.Errorf("Expected the delete to roll back, got %d live articles", n)
	}

	err = e.engine.Atomic(ctx, func(ctx context.Context, tx *permanent.Engine) error {
		authors, err := permanent.NewManager[Author](tx)
		if err != nil {
			return err
		}
		stored, err := authors.Objects().Filter(builder.Eq("id", frank.ID)).Get(ctx)
		if err != nil {
			return err
		}
		_, err = authors.Delete(ctx, stored, false)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if n := count(t, e.articles.Deleted()); n != 1 {
		t.Errorf("Expected the delete to commit, got %d deleted articles", n)
	}
}

func TestIntegration_ConcurrentDeletes(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	grace := e.seed(t, "Grace", "grace@example.com", 3)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var total int64
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record := &Author{ID: grace.ID, Name: grace.Name, Email: grace.Email}
			res, err := e.authors.Delete(ctx, record, false)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			total += res.Total
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent delete failed: %v", err)
	}
	if n := count(t, e.authors.Deleted()); n != 1 {
		t.Errorf("Expected 1 deleted author, got %d", n)
	}
	if n := count(t, e.replies.Deleted()); n != 3 {
		t.Errorf("Expected 3 deleted replies, got %d", n)
	}
	if total < 7 || total > 7*workers {
		t.Errorf("Unexpected total %d", total)
	}
}
