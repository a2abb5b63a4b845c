package relorm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golobby/relorm"
	"github.com/golobby/relorm/internal/demo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := setup(t)
	s := conn.Session()
	assert.Equal(t, relorm.StateClean, s.State())

	u, err := relorm.Create[*demo.User](s, relorm.Fields{"name": "User1", "email": "user1@example.com"})
	require.NoError(t, err)
	assert.Equal(t, relorm.StatePending, s.State())
	assert.Zero(t, u.ID)
	assert.True(t, s.Contains(u))

	tempID, ok := s.TempID(u)
	require.True(t, ok)
	_, err = uuid.Parse(tempID)
	assert.NoError(t, err)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, relorm.StateClean, s.State())
	assert.Equal(t, int64(1), u.ID)

	found, err := relorm.FindByID[*demo.User](ctx, s, u.ID)
	require.NoError(t, err)
	assert.Same(t, u, found)

	_, err = relorm.Create[*demo.User](s, relorm.Fields{"name": "User2", "email": "user2@example.com"})
	require.NoError(t, err)
	s.Clear()
	assert.Equal(t, relorm.StateClean, s.State())
	assert.False(t, s.Contains(u))
	require.NoError(t, s.Flush(ctx))

	n, err := relorm.Count[*demo.User](ctx, s, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "cleared changes are never written")
}

func TestCreate(t *testing.T) {
	conn := setup(t)
	s := conn.Session()

	t.Run("relations and columns", func(t *testing.T) {
		u, err := relorm.Create[*demo.User](s, relorm.Fields{"Name": "User1", "email": "user1@example.com"})
		require.NoError(t, err)
		a, err := relorm.Create[*demo.Address](s, relorm.Fields{"type": "home", "country": "Chad", "user": u})
		require.NoError(t, err)
		assert.Same(t, u, a.User)
	})

	cases := []struct {
		name   string
		fields relorm.Fields
	}{
		{"unknown field", relorm.Fields{"name": "x", "email": "x@example.com", "age": 3}},
		{"incompatible value", relorm.Fields{"id": "abc", "name": "x", "email": "x@example.com"}},
		{"tag validation", relorm.Fields{"name": "x", "email": "not an email"}},
		{"required field", relorm.Fields{"email": "x@example.com"}},
		{"wrong holder", relorm.Fields{"name": "x", "email": "x@example.com", "addresses": "home"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := relorm.Create[*demo.User](s, tc.fields)
			assert.ErrorIs(t, err, relorm.ErrValidation)
		})
	}

	t.Run("validation error names the field", func(t *testing.T) {
		_, err := relorm.Create[*demo.Address](s, relorm.Fields{"type": "office", "country": "Chad"})
		var ve *relorm.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "Address", ve.Entity)
		assert.Equal(t, "Type", ve.Field)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := relorm.Create[*Unregistered](s, relorm.Fields{})
		assert.ErrorIs(t, err, relorm.ErrUnknownEntity)
	})
}

type Unregistered struct {
	ID int64
}

func (Unregistered) ConfigureEntity(e *relorm.EntityConfigurator) {}

func TestFlushConstraints(t *testing.T) {
	ctx := context.Background()

	t.Run("unique email", func(t *testing.T) {
		s := setup(t).Session()
		_, err := relorm.Create[*demo.User](s, relorm.Fields{"name": "User1", "email": "same@example.com"})
		require.NoError(t, err)
		u2, err := relorm.Create[*demo.User](s, relorm.Fields{"name": "User2", "email": "same@example.com"})
		require.NoError(t, err)

		err = s.Flush(ctx)
		require.ErrorIs(t, err, relorm.ErrConstraintViolation)
		var cv *relorm.ConstraintViolationError
		require.True(t, errors.As(err, &cv))
		assert.Equal(t, relorm.ConstraintUnique, cv.Kind)
		assert.Equal(t, relorm.StatePending, s.State())
		assert.Zero(t, u2.ID)

		n, err := relorm.Count[*demo.User](ctx, s, nil)
		require.NoError(t, err)
		assert.Zero(t, n, "the failed flush is rolled back")

		u2.Email = "other@example.com"
		require.NoError(t, s.Flush(ctx))
		n, err = relorm.Count[*demo.User](ctx, s, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("address without user", func(t *testing.T) {
		s := setup(t).Session()
		_, err := relorm.Create[*demo.Address](s, relorm.Fields{"type": "home", "country": "Chad"})
		require.NoError(t, err)
		err = s.Flush(ctx)
		var cv *relorm.ConstraintViolationError
		require.True(t, errors.As(err, &cv))
		assert.Equal(t, relorm.ConstraintNotNull, cv.Kind)
		assert.Equal(t, "addresses", cv.Table)
	})

	t.Run("address of a missing user", func(t *testing.T) {
		s := setup(t).Session()
		_, err := relorm.Create[*demo.Address](s, relorm.Fields{"type": "home", "country": "Chad", "user_id": 99})
		require.NoError(t, err)
		err = s.Flush(ctx)
		var cv *relorm.ConstraintViolationError
		require.True(t, errors.As(err, &cv))
		assert.Equal(t, relorm.ConstraintForeignKey, cv.Kind)
	})
}

func TestUpdateAndRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("changes are written on flush", func(t *testing.T) {
		s := seeded(t, "A")
		u, err := relorm.FindByID[*demo.User](ctx, s, 1)
		require.NoError(t, err)
		u.Name = "Renamed"
		assert.Equal(t, relorm.StateClean, s.State())
		require.NoError(t, s.Flush(ctx))
		s.Clear()

		reloaded, err := relorm.FindByID[*demo.User](ctx, s, 1)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", reloaded.Name)
	})

	t.Run("moving an address to another user", func(t *testing.T) {
		s := seeded(t, "A")
		a, err := relorm.FindOne[*demo.Address](ctx, s, relorm.Filter{"country": "Zambia"}, nil)
		require.NoError(t, err)
		u2, err := relorm.FindByID[*demo.User](ctx, s, 2)
		require.NoError(t, err)
		a.User = u2
		require.NoError(t, s.Flush(ctx))
		s.Clear()

		n, err := relorm.Count[*demo.Address](ctx, s, relorm.Filter{"user_id": 2})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("remove cascades to loaded addresses", func(t *testing.T) {
		s := seeded(t, "B")
		users, err := relorm.Find[*demo.User](ctx, s, relorm.Filter{"name": "User1"},
			&relorm.FindOptions{Populate: []string{"addresses"}})
		require.NoError(t, err)
		require.Len(t, users, 1)
		require.NoError(t, s.Remove(users[0]))
		assert.Equal(t, relorm.StatePending, s.State())
		assert.False(t, s.Contains(users[0].Addresses[0]))

		remaining, err := relorm.Find[*demo.User](ctx, s, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"User2"}, names(remaining), "removed entities are not returned")

		require.NoError(t, s.Flush(ctx))
		s.Clear()
		n, err := relorm.Count[*demo.Address](ctx, s, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = relorm.FindByID[*demo.User](ctx, s, 1)
		assert.ErrorIs(t, err, relorm.ErrNotFound)
	})

	t.Run("removing a new entity forgets it", func(t *testing.T) {
		s := setup(t).Session()
		u, err := relorm.Create[*demo.User](s, relorm.Fields{"name": "User1", "email": "user1@example.com"})
		require.NoError(t, err)
		require.NoError(t, s.Remove(u))
		assert.False(t, s.Contains(u))
		require.NoError(t, s.Flush(ctx))
		assert.Zero(t, u.ID)
	})

	t.Run("unmanaged", func(t *testing.T) {
		s := setup(t).Session()
		assert.ErrorIs(t, s.Remove(&demo.User{Name: "stranger"}), relorm.ErrNotManaged)
	})
}

func TestPersistGraph(t *testing.T) {
	ctx := context.Background()
	conn := setup(t)
	s := conn.Session()

	p := &Post{
		Title:    "Hello",
		Comments: []*Comment{{Body: "first"}, {Body: "second"}},
		Picture:  &HeaderPicture{Link: "https://example.com/hello.png"},
	}
	require.NoError(t, s.Persist(p))
	for _, c := range p.Comments {
		assert.Same(t, p, c.Post)
	}
	require.NoError(t, s.Flush(ctx))

	require.NotZero(t, p.ID)
	assert.Equal(t, p.ID, p.Comments[0].PostID)
	assert.Equal(t, p.ID, p.Picture.PostID)
	assert.True(t, p.CreatedAt.Valid)
	assert.True(t, p.UpdatedAt.Valid)
	created := p.CreatedAt.Time

	p.Title = "Hello again"
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, created, p.CreatedAt.Time)
	assert.False(t, p.UpdatedAt.Time.Before(created))

	t.Run("invalid entity", func(t *testing.T) {
		err := s.Persist(&Post{})
		assert.ErrorIs(t, err, relorm.ErrValidation)
		err = s.Persist(nil)
		assert.ErrorIs(t, err, relorm.ErrValidation)
	})

	t.Run("loaders", func(t *testing.T) {
		s.Clear()
		post, err := relorm.FindByID[*Post](ctx, s, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Hello again", post.Title)

		comments, err := relorm.HasMany[*Comment](ctx, s, post)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, "first", comments[0].Body)
		assert.Equal(t, comments, post.Comments)

		picture, err := relorm.HasOne[*HeaderPicture](ctx, s, post)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/hello.png", picture.Link)
		assert.Same(t, picture, post.Picture)

		owner, err := relorm.BelongsTo[*Post](ctx, s, comments[1])
		require.NoError(t, err)
		assert.Same(t, post, owner)
	})

	t.Run("populate", func(t *testing.T) {
		s.Clear()
		posts, err := relorm.Find[*Post](ctx, s, nil,
			&relorm.FindOptions{Populate: []string{"comments", "header_picture"}})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Len(t, posts[0].Comments, 2)
		require.NotNil(t, posts[0].Picture)
	})

	t.Run("missing relation", func(t *testing.T) {
		s.Clear()
		lonely := &Post{Title: "alone"}
		require.NoError(t, s.Persist(lonely))
		require.NoError(t, s.Flush(ctx))
		_, err := relorm.HasOne[*HeaderPicture](ctx, s, lonely)
		assert.ErrorIs(t, err, relorm.ErrNotFound)
		comments, err := relorm.HasMany[*Comment](ctx, s, lonely)
		require.NoError(t, err)
		assert.Empty(t, comments)
	})
}

func TestRelationLoadersRejectNil(t *testing.T) {
	ctx := context.Background()
	s := setup(t).Session()

	_, err := relorm.HasMany[*demo.Address](ctx, s, nil)
	assert.ErrorIs(t, err, relorm.ErrValidation)
	_, err = relorm.HasOne[*HeaderPicture](ctx, s, nil)
	assert.ErrorIs(t, err, relorm.ErrValidation)
	_, err = relorm.BelongsTo[*demo.User](ctx, s, (*demo.Address)(nil))
	assert.ErrorIs(t, err, relorm.ErrValidation)
}
