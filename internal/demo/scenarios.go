package demo

import (
	"context"
	"fmt"

	"github.com/golobby/relorm"
)

type Scenario struct {
	Name        string
	Description string
	Seed        func(s *relorm.Session) error
}

var Scenarios = []Scenario{
	{
		Name:        "A",
		Description: "one home address per user",
		Seed: func(s *relorm.Session) error {
			return seed(s, []seedUser{
				{name: "User1", email: "user1@example.com", addresses: [][2]string{{"home", "Zambia"}}},
				{name: "User2", email: "user2@example.com", addresses: [][2]string{{"home", "Germany"}}},
			})
		},
	},
	{
		Name:        "B",
		Description: "User1 also has a work address that sorts first",
		Seed: func(s *relorm.Session) error {
			return seed(s, []seedUser{
				{name: "User1", email: "user1@example.com", addresses: [][2]string{{"home", "Zambia"}, {"work", "Albania"}}},
				{name: "User2", email: "user2@example.com", addresses: [][2]string{{"home", "Germany"}}},
			})
		},
	},
}

func ScenarioByName(name string) (Scenario, bool) {
	for _, sc := range Scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

type seedUser struct {
	name      string
	email     string
	addresses [][2]string
}

func seed(s *relorm.Session, users []seedUser) error {
	for _, su := range users {
		u, err := relorm.Create[*User](s, relorm.Fields{"name": su.name, "email": su.email})
		if err != nil {
			return err
		}
		for _, a := range su.addresses {
			if _, err := relorm.Create[*Address](s, relorm.Fields{"type": a[0], "country": a[1], "user": u}); err != nil {
				return err
			}
		}
	}
	return nil
}

// HomeUsersByCountry returns users with a home address, ordered by the
// country of that home address.
func HomeUsersByCountry(ctx context.Context, s *relorm.Session, limit int) ([]*User, error) {
	return relorm.Find[*User](ctx, s,
		relorm.Filter{"addresses": relorm.Filter{"type": "home"}},
		&relorm.FindOptions{OrderBy: []relorm.Order{relorm.Asc("addresses.country")}, Limit: limit},
	)
}

// Run recreates the schema, seeds sc, flushes, clears the session and
// returns the names from HomeUsersByCountry.
func Run(ctx context.Context, conn *relorm.Connection, sc Scenario) ([]string, error) {
	if err := conn.RefreshDatabase(ctx); err != nil {
		return nil, err
	}
	s := conn.Session()
	if err := sc.Seed(s); err != nil {
		return nil, fmt.Errorf("seed %s: %w", sc.Name, err)
	}
	if err := s.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush %s: %w", sc.Name, err)
	}
	s.Clear()

	users, err := HomeUsersByCountry(ctx, s, 10)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return names, nil
}
