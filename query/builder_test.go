package query

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdev/loam"
	"github.com/loamdev/loam/dialect"
	sqld "github.com/loamdev/loam/dialect/sql"
	"github.com/loamdev/loam/schema"
)

func userType() *schema.Type {
	return schema.NewType("user", schema.Fillable("name", "email"))
}

func TestBuilderSQL(t *testing.T) {
	t.Parallel()
	typ := userType()

	t.Run("bare select", func(t *testing.T) {
		t.Parallel()
		q, args := New(nil, typ).SQL()
		assert.Equal(t, `SELECT * FROM "users"`, q)
		assert.Empty(t, args)
	})

	t.Run("projection is table qualified", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, typ).Select("id", "name").SQL()
		assert.Equal(t, `SELECT "users"."id", "users"."name" FROM "users"`, q)
	})

	t.Run("add select dedupes", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, typ).Select("id").AddSelect("name", "id").SQL()
		assert.Equal(t, `SELECT "users"."id", "users"."name" FROM "users"`, q)
	})

	t.Run("where chain", func(t *testing.T) {
		t.Parallel()
		q, args := New(nil, typ).
			Where("age", ">", 18).
			OrWhere("role", "=", "admin").
			SQL()
		assert.Equal(t, `SELECT * FROM "users" WHERE "age" > ? OR "role" = ?`, q)
		assert.Equal(t, []any{18, "admin"}, args)
	})

	t.Run("where in", func(t *testing.T) {
		t.Parallel()
		q, args := New(nil, typ).WhereIn("id", []any{1, 2, 3}).SQL()
		assert.Equal(t, `SELECT * FROM "users" WHERE "id" IN (?, ?, ?)`, q)
		assert.Equal(t, []any{1, 2, 3}, args)
	})

	t.Run("empty where in matches nothing", func(t *testing.T) {
		t.Parallel()
		q, args := New(nil, typ).WhereIn("id", nil).SQL()
		assert.Equal(t, `SELECT * FROM "users" WHERE 1 = 0`, q)
		assert.Empty(t, args)
	})

	t.Run("empty where not in matches everything", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, typ).WhereNotIn("id", nil).SQL()
		assert.Equal(t, `SELECT * FROM "users" WHERE 1 = 1`, q)
	})

	t.Run("null checks", func(t *testing.T) {
		t.Parallel()
		q, args := New(nil, typ).WhereNull("deleted_at").WhereNotNull("email").SQL()
		assert.Equal(t, `SELECT * FROM "users" WHERE "deleted_at" IS NULL AND "email" IS NOT NULL`, q)
		assert.Empty(t, args)
	})

	t.Run("joins", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, typ).
			Join("profiles", "users.id", "=", "profiles.user_id", LeftJoin).
			SQL()
		assert.Equal(t, `SELECT * FROM "users" LEFT JOIN "profiles" ON "users"."id" = "profiles"."user_id"`, q)
	})

	t.Run("order limit offset", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, typ).
			OrderBy("name").
			OrderByDesc("id").
			Limit(10).
			Offset(5).
			SQL()
		assert.Equal(t, `SELECT * FROM "users" ORDER BY "name", "id" DESC LIMIT 10 OFFSET 5`, q)
	})

	t.Run("raw table", func(t *testing.T) {
		t.Parallel()
		q, args := NewTable(nil, "post_tag").Where("post_id", "=", 7).SQL()
		assert.Equal(t, `SELECT * FROM "post_tag" WHERE "post_id" = ?`, q)
		assert.Equal(t, []any{7}, args)
	})
}

func TestBuilderDialects(t *testing.T) {
	t.Parallel()
	typ := userType()

	t.Run("postgres numbers placeholders", func(t *testing.T) {
		t.Parallel()
		drv := sqld.OpenDB(dialect.Postgres, nil)
		q, args := New(drv, typ).Where("name", "=", "alice").Where("age", ">", 18).SQL()
		assert.Equal(t, `SELECT * FROM "users" WHERE "name" = $1 AND "age" > $2`, q)
		assert.Equal(t, []any{"alice", 18}, args)
	})

	t.Run("mysql backticks", func(t *testing.T) {
		t.Parallel()
		drv := sqld.OpenDB(dialect.MySQL, nil)
		q, _ := New(drv, typ).Select("id").Where("name", "=", "alice").SQL()
		assert.Equal(t, "SELECT `users`.`id` FROM `users` WHERE `name` = ?", q)
	})
}

func TestBuilderScopes(t *testing.T) {
	t.Parallel()
	newTyp := func() *schema.Type {
		return schema.NewType("post", schema.SoftDelete("deleted_at"))
	}

	t.Run("soft delete applies by default", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, newTyp()).SQL()
		assert.Equal(t, `SELECT * FROM "posts" WHERE "deleted_at" IS NULL`, q)
	})

	t.Run("with trashed suspends for one query", func(t *testing.T) {
		t.Parallel()
		b := New(nil, newTyp())
		q, _ := b.WithTrashed().SQL()
		assert.Equal(t, `SELECT * FROM "posts"`, q)
	})

	t.Run("only trashed inverts", func(t *testing.T) {
		t.Parallel()
		q, _ := New(nil, newTyp()).OnlyTrashed().SQL()
		assert.Equal(t, `SELECT * FROM "posts" WHERE "deleted_at" IS NOT NULL`, q)
	})

	t.Run("custom scope combines with conditions", func(t *testing.T) {
		t.Parallel()
		typ := newTyp()
		typ.AddScope("published", schema.ScopeFunc(func() []schema.Condition {
			return []schema.Condition{{Column: "published", Op: "=", Value: true}}
		}))
		q, args := New(nil, typ).Where("title", "=", "go").SQL()
		assert.Equal(t, `SELECT * FROM "posts" WHERE "title" = ? AND "published" = ? AND "deleted_at" IS NULL`, q)
		assert.Equal(t, []any{"go", true}, args)
	})

	t.Run("without scope disables by name", func(t *testing.T) {
		t.Parallel()
		typ := newTyp()
		typ.AddScope("published", schema.ScopeFunc(func() []schema.Condition {
			return []schema.Condition{{Column: "published", Op: "=", Value: true}}
		}))
		q, _ := New(nil, typ).WithoutScope("published").SQL()
		assert.Equal(t, `SELECT * FROM "posts" WHERE "deleted_at" IS NULL`, q)
	})
}

func TestBuilderClone(t *testing.T) {
	t.Parallel()
	typ := userType()
	base := New(nil, typ).Select("id").Where("role", "=", "admin")
	clone := base.Clone()
	clone.Where("age", ">", 30)

	q, _ := base.SQL()
	assert.Equal(t, `SELECT "users"."id" FROM "users" WHERE "role" = ?`, q)

	q, _ = clone.SQL()
	assert.Equal(t, `SELECT "users"."id" FROM "users" WHERE "role" = ? AND "age" > ?`, q)
}

func TestBuilderGet(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sqld.OpenDB(dialect.SQLite, db)
	typ := userType()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "name" = ?`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))

	b := New(drv, typ)
	recs, err := b.Where("name", "=", "alice").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "user", recs[0].TypeName())
	assert.Equal(t, int64(1), recs[0].Int64("id"))
	assert.Equal(t, "alice", recs[0].String("name"))
	assert.False(t, recs[0].IsDirty())

	// State does not leak into the next query on the same builder.
	q, args := b.SQL()
	assert.Equal(t, `SELECT * FROM "users"`, q)
	assert.Empty(t, args)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilderGetError(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sqld.OpenDB(dialect.SQLite, db)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("boom"))

	b := New(drv, userType())
	_, err = b.Where("name", "=", "alice").Get(context.Background())
	require.Error(t, err)
	assert.True(t, loam.IsQueryError(err))

	// Failure also resets accumulated state.
	q, _ := b.SQL()
	assert.Equal(t, `SELECT * FROM "users"`, q)
}

func TestBuilderFirst(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sqld.OpenDB(dialect.SQLite, db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	r, err := New(drv, userType()).First(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilderFind(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sqld.OpenDB(dialect.SQLite, db)

	t.Run("hit", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "id" = ? LIMIT 1`)).
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "alice"))

		r, err := New(drv, userType()).Find(context.Background(), 7)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, int64(7), r.Int64("id"))
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "id" = ? LIMIT 1`)).
			WithArgs(8).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		_, err := New(drv, userType()).Find(context.Background(), 8)
		require.Error(t, err)
		assert.True(t, loam.IsNotFound(err))
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilderByteColumnsBecomeStrings(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sqld.OpenDB(dialect.MySQL, db)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), []byte("alice")))

	recs, err := New(drv, userType()).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	v, ok := recs[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}
