package relorm

import (
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID        int64
	Name      string
	Email     string
	Addresses []*testAddress
}

func (u testUser) ConfigureEntity(e *EntityConfigurator) {
	e.Table("users")
	e.Field("Email").IsUnique()
	e.HasMany(&testAddress{}, HasManyConfig{})
}

type testAddress struct {
	ID      int64
	Type    string
	Country string
	User    *testUser
}

func (a testAddress) ConfigureEntity(e *EntityConfigurator) {
	e.Table("addresses")
	e.BelongsTo(&testUser{}, BelongsToConfig{})
}

type Object struct {
	ID   int64
	Name string
	Timestamps
}

func (o Object) ConfigureEntity(e *EntityConfigurator) {
	e.Table("objects").Connection("default")
}

type Category struct {
	ID    int64
	Title string `orm:"col=label unique"`
	Slug  string
}

func (c Category) ConfigureEntity(e *EntityConfigurator) {
	e.Field("Slug").ColumnName("permalink").IsNullable()
}

func testEntities() []Entity {
	return []Entity{&testUser{}, &testAddress{}}
}

func mockConnection(t *testing.T, dialect *Dialect, entities ...Entity) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if len(entities) == 0 {
		entities = testEntities()
	}
	conn, err := Connect(ConnectionConfig{
		Name:     t.Name(),
		DB:       db,
		Dialect:  dialect,
		Entities: entities,
	})
	require.NoError(t, err)
	return conn, mock
}

func typeOf(v interface{}) reflect.Type {
	return reflect.TypeOf(v)
}
