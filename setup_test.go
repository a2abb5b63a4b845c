package relorm_test

import (
	"context"
	"testing"

	"github.com/golobby/relorm"
	"github.com/golobby/relorm/internal/demo"
	"github.com/stretchr/testify/require"
)

type Post struct {
	ID       int64
	Title    string `valid:"required"`
	Body     string
	Comments []*Comment
	Picture  *HeaderPicture
	relorm.Timestamps
}

func (p Post) ConfigureEntity(e *relorm.EntityConfigurator) {
	e.Table("posts")
	e.HasMany(&Comment{}, relorm.HasManyConfig{})
	e.HasOne(&HeaderPicture{}, relorm.HasOneConfig{})
}

type Comment struct {
	ID     int64
	PostID int64
	Body   string
	Post   *Post
}

func (c Comment) ConfigureEntity(e *relorm.EntityConfigurator) {
	e.Table("comments")
	e.BelongsTo(&Post{}, relorm.BelongsToConfig{})
}

type HeaderPicture struct {
	ID     int64
	PostID int64
	Link   string
}

func (h HeaderPicture) ConfigureEntity(e *relorm.EntityConfigurator) {
	e.Table("header_pictures")
}

func setup(t *testing.T) *relorm.Connection {
	t.Helper()
	entities := append(demo.Entities(), &Post{}, &Comment{}, &HeaderPicture{})
	conn, err := relorm.Connect(relorm.ConnectionConfig{
		Name:             t.Name(),
		Driver:           "sqlite3",
		ConnectionString: ":memory:",
		Entities:         entities,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.RefreshDatabase(context.Background()))
	return conn
}

// seeded returns a cleared session over the rows of the named demo scenario.
func seeded(t *testing.T, name string) *relorm.Session {
	t.Helper()
	conn := setup(t)
	sc, ok := demo.ScenarioByName(name)
	require.True(t, ok)
	s := conn.Session()
	require.NoError(t, sc.Seed(s))
	require.NoError(t, s.Flush(context.Background()))
	s.Clear()
	return s
}

func names(users []*demo.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}
