// Package demo holds the User/Address model and the seed scenarios used by
// the relorm CLI and tests.
package demo

import "github.com/golobby/relorm"

type User struct {
	ID        int64
	Name      string `valid:"required"`
	Email     string `valid:"email,required"`
	Addresses []*Address
}

func (u User) ConfigureEntity(e *relorm.EntityConfigurator) {
	e.Table("users")
	e.Field("Email").IsUnique()
	e.HasMany(&Address{}, relorm.HasManyConfig{})
}

type Address struct {
	ID      int64
	Type    string `valid:"in(home|work),required"`
	Country string `valid:"required"`
	User    *User
}

func (a Address) ConfigureEntity(e *relorm.EntityConfigurator) {
	e.Table("addresses")
	e.BelongsTo(&User{}, relorm.BelongsToConfig{})
}

func Entities() []relorm.Entity {
	return []relorm.Entity{&User{}, &Address{}}
}
