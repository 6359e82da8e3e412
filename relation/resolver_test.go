package relation

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdev/loam/dialect"
	sqld "github.com/loamdev/loam/dialect/sql"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/schema"
)

func blogRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	user := schema.NewType("user")
	post := schema.NewType("post")
	profile := schema.NewType("profile")
	tag := schema.NewType("tag")

	user.HasMany("posts", "post")
	user.HasOne("profile", "profile")
	post.OwnedBy("author", "user")
	post.ManyToMany("tags", "tag")

	return schema.NewRegistry().MustRegister(user, post, profile, tag)
}

func mockDriver(t *testing.T) (*sqld.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqld.OpenDB(dialect.SQLite, db), mock
}

func typedRecord(typeName string, columns []string, values []any) *record.Record {
	r := record.New(typeName)
	r.Hydrate(columns, values)
	return r
}

func mustRel(t *testing.T, reg *schema.Registry, typeName, name string) *schema.Rel {
	t.Helper()
	typ, err := reg.Type(typeName)
	require.NoError(t, err)
	rel, err := typ.Relation(name)
	require.NoError(t, err)
	return rel
}

func TestBatchHasMany(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "posts"), reg, drv)

	parents := record.Records{
		typedRecord("user", []string{"id"}, []any{int64(1)}),
		typedRecord("user", []string{"id"}, []any{int64(2)}),
		typedRecord("user", []string{"id"}, []any{int64(3)}),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?, ?, ?)`)).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(int64(10), int64(1), "a").
			AddRow(int64(11), int64(2), "b").
			AddRow(int64(12), int64(1), "c"))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)

	children := res.Assign(parents, groups)
	assert.Len(t, children, 3)

	v, ok := parents[0].Relation("posts")
	require.True(t, ok)
	one := v.(record.Records)
	require.Len(t, one, 2)
	assert.Equal(t, "a", one[0].String("title"))
	assert.Equal(t, "c", one[1].String("title"))

	v, _ = parents[1].Relation("posts")
	assert.Len(t, v.(record.Records), 1)

	// A parent with no matching rows still gets a defined, empty state.
	v, ok = parents[2].Relation("posts")
	require.True(t, ok)
	assert.Empty(t, v.(record.Records))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchHasManyDistinctKeys(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "posts"), reg, drv)

	// Duplicate and missing parent keys collapse into one distinct set.
	parents := record.Records{
		typedRecord("user", []string{"id"}, []any{int64(1)}),
		typedRecord("user", []string{"id"}, []any{int64(1)}),
		record.New("user"),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(10), int64(1)))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)
	res.Assign(parents, groups)

	// Both duplicates share the same related records.
	a, _ := parents[0].Relation("posts")
	b, _ := parents[1].Relation("posts")
	assert.Equal(t, a, b)

	// The keyless parent resolves to empty without touching the database.
	v, ok := parents[2].Relation("posts")
	require.True(t, ok)
	assert.Empty(t, v.(record.Records))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchHasManyChunks(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "posts"), reg, drv, WithChunkSize(2))

	parents := record.Records{
		typedRecord("user", []string{"id"}, []any{int64(1)}),
		typedRecord("user", []string{"id"}, []any{int64(2)}),
		typedRecord("user", []string{"id"}, []any{int64(3)}),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?, ?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(10), int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?)`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(11), int64(3)))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchHasOneFirstMatchWins(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "profile"), reg, drv)

	parents := record.Records{
		typedRecord("user", []string{"id"}, []any{int64(1)}),
		typedRecord("user", []string{"id"}, []any{int64(2)}),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE "user_id" IN (?, ?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).
			AddRow(int64(100), int64(1), "first").
			AddRow(int64(101), int64(1), "second"))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)
	res.Assign(parents, groups)

	v, ok := parents[0].Relation("profile")
	require.True(t, ok)
	assert.Equal(t, "first", v.(*record.Record).String("bio"))

	// Singular empty state is a typed nil record.
	v, ok = parents[1].Relation("profile")
	require.True(t, ok)
	assert.Nil(t, v.(*record.Record))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchOwnedBy(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "post", "author"), reg, drv)

	parents := record.Records{
		typedRecord("post", []string{"id", "user_id"}, []any{int64(10), int64(1)}),
		typedRecord("post", []string{"id", "user_id"}, []any{int64(11), int64(1)}),
		typedRecord("post", []string{"id", "user_id"}, []any{int64(12), nil}),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)
	res.Assign(parents, groups)

	a, _ := parents[0].Relation("author")
	b, _ := parents[1].Relation("author")
	require.NotNil(t, a)
	assert.Same(t, a.(*record.Record), b.(*record.Record))
	assert.Equal(t, "alice", a.(*record.Record).String("name"))

	// A null foreign key resolves to nil, a defined state.
	v, ok := parents[2].Relation("author")
	require.True(t, ok)
	assert.Nil(t, v.(*record.Record))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchManyToMany(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "post", "tags"), reg, drv)

	parents := record.Records{
		typedRecord("post", []string{"id"}, []any{int64(10)}),
		typedRecord("post", []string{"id"}, []any{int64(11)}),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "post_tag" WHERE "post_id" IN (?, ?)`)).
		WithArgs(int64(10), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "tag_id"}).
			AddRow(int64(10), int64(1)).
			AddRow(int64(10), int64(2)).
			AddRow(int64(11), int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tags" WHERE "id" IN (?, ?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "go").
			AddRow(int64(2), "sql"))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)
	res.Assign(parents, groups)

	v, _ := parents[0].Relation("tags")
	tags := v.(record.Records)
	require.Len(t, tags, 2)
	assert.Equal(t, "go", tags[0].String("name"))
	assert.Equal(t, "sql", tags[1].String("name"))

	v, _ = parents[1].Relation("tags")
	other := v.(record.Records)
	require.Len(t, other, 1)
	// Shared tags are the same record instance on both parents.
	assert.Same(t, tags[1], other[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchProjectionKeepsKey(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "posts"), reg, drv)

	parents := record.Records{typedRecord("user", []string{"id"}, []any{int64(1)})}

	base, err := res.Query()
	require.NoError(t, err)
	base.Select("title")

	// The correlating column is forced back into the narrowed projection.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "posts"."title", "posts"."user_id" FROM "posts" WHERE "user_id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "user_id"}).AddRow("a", int64(1)))

	groups, err := res.Batch(context.Background(), parents, base)
	require.NoError(t, err)
	res.Assign(parents, groups)

	v, _ := parents[0].Relation("posts")
	require.Len(t, v.(record.Records), 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchKeyNormalization(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "posts"), reg, drv)

	// Parent key scanned as int64, child key as string: they still correlate.
	parents := record.Records{typedRecord("user", []string{"id"}, []any{int64(1)})}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(10), "1"))

	groups, err := res.Batch(context.Background(), parents, nil)
	require.NoError(t, err)
	res.Assign(parents, groups)

	v, _ := parents[0].Relation("posts")
	assert.Len(t, v.(record.Records), 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSingleHasMany(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, mock := mockDriver(t)
	res := New(mustRel(t, reg, "user", "posts"), reg, drv)

	parent := typedRecord("user", []string{"id"}, []any{int64(1)})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" = ?`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(int64(10), int64(1)))

	v, err := res.Single(context.Background(), parent, nil)
	require.NoError(t, err)
	assert.Len(t, v.(record.Records), 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSingleOwnedByNullKey(t *testing.T) {
	t.Parallel()
	reg := blogRegistry(t)
	drv, _ := mockDriver(t)
	res := New(mustRel(t, reg, "post", "author"), reg, drv)

	parent := typedRecord("post", []string{"id", "user_id"}, []any{int64(10), nil})
	v, err := res.Single(context.Background(), parent, nil)
	require.NoError(t, err)
	assert.Nil(t, v.(*record.Record))
}
