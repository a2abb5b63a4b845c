package relorm_test

import (
	"context"
	"testing"

	"github.com/golobby/relorm"
	"github.com/golobby/relorm/internal/demo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var homeFilter = relorm.Filter{"addresses": relorm.Filter{"type": "home"}}

func TestFindByRelatedField(t *testing.T) {
	ctx := context.Background()
	byCountry := &relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}, Limit: 10}

	t.Run("scenario A", func(t *testing.T) {
		s := seeded(t, "A")
		users, err := relorm.Find[*demo.User](ctx, s, homeFilter, byCountry)
		require.NoError(t, err)
		assert.Equal(t, []string{"User2", "User1"}, names(users))
	})

	t.Run("scenario B ignores the non matching work address", func(t *testing.T) {
		s := seeded(t, "B")
		users, err := relorm.Find[*demo.User](ctx, s, homeFilter, byCountry)
		require.NoError(t, err)
		assert.Equal(t, []string{"User2", "User1"}, names(users))
	})

	t.Run("without a filter every address takes part in ordering", func(t *testing.T) {
		s := seeded(t, "B")
		users, err := relorm.Find[*demo.User](ctx, s, nil,
			&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}})
		require.NoError(t, err)
		assert.Equal(t, []string{"User1", "User2"}, names(users))
	})

	t.Run("descending uses the largest matching value", func(t *testing.T) {
		s := seeded(t, "B")
		users, err := relorm.Find[*demo.User](ctx, s, homeFilter,
			&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Desc("addresses.country")}})
		require.NoError(t, err)
		assert.Equal(t, []string{"User1", "User2"}, names(users))
	})

	t.Run("limit and offset apply to roots only", func(t *testing.T) {
		s := seeded(t, "B")
		first, err := relorm.Find[*demo.User](ctx, s, homeFilter,
			&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"User2"}, names(first))

		rest, err := relorm.Find[*demo.User](ctx, s, homeFilter,
			&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"User1"}, names(rest))
	})

	t.Run("no match is an empty result", func(t *testing.T) {
		s := seeded(t, "A")
		users, err := relorm.Find[*demo.User](ctx, s,
			relorm.Filter{"addresses": relorm.Filter{"type": "work"}}, byCountry)
		require.NoError(t, err)
		assert.NotNil(t, users)
		assert.Empty(t, users)
	})
}

func TestFindExistential(t *testing.T) {
	ctx := context.Background()
	conn := setup(t)
	s := conn.Session()
	u, err := relorm.Create[*demo.User](s, relorm.Fields{"name": "User3", "email": "user3@example.com"})
	require.NoError(t, err)
	for _, country := range []string{"France", "Brazil", "Chad"} {
		_, err := relorm.Create[*demo.Address](s, relorm.Fields{"type": "home", "country": country, "user": u})
		require.NoError(t, err)
	}
	lonely, err := relorm.Create[*demo.User](s, relorm.Fields{"name": "User4", "email": "user4@example.com"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	s.Clear()

	users, err := relorm.Find[*demo.User](ctx, s, homeFilter,
		&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"User3"}, names(users))

	n, err := relorm.Count[*demo.User](ctx, s, homeFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := relorm.Find[*demo.User](ctx, s, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"User3", "User4"}, names(all))
	assert.Equal(t, lonely.ID, all[1].ID)
}

func TestFindOperators(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "B")

	cases := []struct {
		name   string
		filter relorm.Filter
		want   []string
	}{
		{"like", relorm.Filter{"email": relorm.Like("user1%")}, []string{"User1"}},
		{"in", relorm.Filter{"name": relorm.In("User2", "User9")}, []string{"User2"}},
		{"not equal", relorm.Filter{"name": relorm.Ne("User1")}, []string{"User2"}},
		{"greater than", relorm.Filter{"id": relorm.Gt(1)}, []string{"User2"}},
		{"nested operator", relorm.Filter{"addresses": relorm.Filter{"country": relorm.Lt("B")}}, []string{"User1"}},
		{"nested and root", relorm.Filter{"name": "User2", "addresses": relorm.Filter{"type": "home"}}, []string{"User2"}},
		{"nested work", relorm.Filter{"addresses": relorm.Filter{"type": "work"}}, []string{"User1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users, err := relorm.Find[*demo.User](ctx, s, tc.filter, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(users))
		})
	}

	t.Run("belongs to an instance", func(t *testing.T) {
		u1, err := relorm.FindOne[*demo.User](ctx, s, relorm.Filter{"name": "User1"}, nil)
		require.NoError(t, err)
		addresses, err := relorm.Find[*demo.Address](ctx, s, relorm.Filter{"user": u1},
			&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("country")}})
		require.NoError(t, err)
		require.Len(t, addresses, 2)
		assert.Equal(t, "Albania", addresses[0].Country)
		assert.Equal(t, "Zambia", addresses[1].Country)
		assert.Same(t, u1, addresses[0].User)
	})

	t.Run("invalid filters", func(t *testing.T) {
		for _, f := range []relorm.Filter{
			{"nickname": "x"},
			{"addresses": relorm.Filter{"user": relorm.Filter{"name": "User1"}}},
			{"addresses": "home"},
		} {
			_, err := relorm.Find[*demo.User](ctx, s, f, nil)
			assert.ErrorIs(t, err, relorm.ErrValidation)
		}
		_, err := relorm.Find[*demo.User](ctx, s, nil, &relorm.FindOptions{Limit: -1})
		assert.ErrorIs(t, err, relorm.ErrValidation)
	})
}

func TestFindByID(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "A")

	u, err := relorm.FindByID[*demo.User](ctx, s, 1)
	require.NoError(t, err)
	assert.Equal(t, "User1", u.Name)

	again, err := relorm.FindByID[*demo.User](ctx, s, int64(1))
	require.NoError(t, err)
	assert.Same(t, u, again)

	_, err = relorm.FindByID[*demo.User](ctx, s, 42)
	assert.ErrorIs(t, err, relorm.ErrNotFound)

	_, err = relorm.FindOne[*demo.User](ctx, s, relorm.Filter{"name": "nobody"}, nil)
	assert.ErrorIs(t, err, relorm.ErrNotFound)
}

func TestIdentityMap(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "B")

	t.Run("same row same instance", func(t *testing.T) {
		first, err := relorm.Find[*demo.User](ctx, s, nil, nil)
		require.NoError(t, err)
		second, err := relorm.Find[*demo.User](ctx, s, homeFilter, nil)
		require.NoError(t, err)
		require.Len(t, first, 2)
		require.Len(t, second, 2)
		assert.Same(t, first[0], second[0])
		assert.Same(t, first[1], second[1])
	})

	t.Run("clear detaches instances", func(t *testing.T) {
		before, err := relorm.FindByID[*demo.User](ctx, s, 1)
		require.NoError(t, err)
		s.Clear()
		assert.False(t, s.Contains(before))
		after, err := relorm.FindByID[*demo.User](ctx, s, 1)
		require.NoError(t, err)
		assert.NotSame(t, before, after)
		assert.Equal(t, before.Name, after.Name)
	})

	t.Run("owners are stubs until loaded", func(t *testing.T) {
		s.Clear()
		addresses, err := relorm.Find[*demo.Address](ctx, s, relorm.Filter{"country": "Germany"}, nil)
		require.NoError(t, err)
		require.Len(t, addresses, 1)
		owner := addresses[0].User
		require.NotNil(t, owner)
		assert.Equal(t, int64(2), owner.ID)
		assert.Empty(t, owner.Name)

		u, err := relorm.FindByID[*demo.User](ctx, s, 2)
		require.NoError(t, err)
		assert.Same(t, owner, u)
		assert.Equal(t, "User2", owner.Name)
	})

	t.Run("loaded rows keep local changes", func(t *testing.T) {
		s.Clear()
		u, err := relorm.FindByID[*demo.User](ctx, s, 1)
		require.NoError(t, err)
		u.Name = "changed"
		users, err := relorm.Find[*demo.User](ctx, s, relorm.Filter{"id": 1}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "changed", users[0].Name)
	})
}

func TestPopulate(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "B")

	users, err := relorm.Find[*demo.User](ctx, s, nil, &relorm.FindOptions{Populate: []string{"addresses"}})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Len(t, users[0].Addresses, 2)
	require.Len(t, users[1].Addresses, 1)
	for _, u := range users {
		for _, a := range u.Addresses {
			assert.Same(t, u, a.User)
		}
	}
	assert.Equal(t, "Zambia", users[0].Addresses[0].Country)
	assert.Equal(t, "Albania", users[0].Addresses[1].Country)

	_, err = relorm.Find[*demo.User](ctx, s, nil, &relorm.FindOptions{Populate: []string{"friends"}})
	assert.ErrorIs(t, err, relorm.ErrValidation)
}

func TestFindSkipsPendingRemovals(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "A")

	all, err := relorm.Find[*demo.User](ctx, s, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"User1", "User2"}, names(all))
	require.NoError(t, s.Remove(all[0]))

	first, err := relorm.Find[*demo.User](ctx, s, nil, &relorm.FindOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"User2"}, names(first))

	homes, err := relorm.Find[*demo.User](ctx, s, homeFilter,
		&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"User2"}, names(homes))

	n, err := relorm.Count[*demo.User](ctx, s, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = relorm.Count[*demo.User](ctx, s, homeFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = relorm.FindOne[*demo.User](ctx, s, relorm.Filter{"name": "User1"}, nil)
	assert.ErrorIs(t, err, relorm.ErrNotFound)
}
