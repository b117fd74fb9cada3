package gaia_test

import (
	"fmt"

	gaia "github.com/gaia-ecs/gaia"
)

// Position is a simple component for 2D coordinates.
type Position struct {
	X float64
	Y float64
}

// Velocity is a simple component for 2D movement.
type Velocity struct {
	X float64
	Y float64
}

// Name is a simple component for entity identification.
type Name struct {
	Value string
}

// Example_basic shows basic gaia usage: registering components,
// creating entities, and running a query over a subset of them.
func Example_basic() {
	w := gaia.NewWorld()
	position := gaia.Register[Position](w)
	velocity := gaia.Register[Velocity](w)
	name := gaia.Register[Name](w)

	for i := 0; i < 5; i++ {
		gaia.Set(w, w.NewEntity(), Position{})
	}
	for i := 0; i < 3; i++ {
		e := w.NewEntity()
		gaia.Set(w, e, Position{})
		gaia.Set(w, e, Velocity{})
	}

	player := w.NewEntity()
	gaia.Set(w, player, Position{X: 10, Y: 20})
	gaia.Set(w, player, Velocity{X: 1, Y: 2})
	gaia.Set(w, player, Name{Value: "Player"})

	moving := w.Query().All(position, velocity).Build()
	fmt.Printf("Found %d entities with position and velocity\n", moving.Count())

	named := w.Query().All(position, velocity, name).Build()
	named.Each(func(it *gaia.Iterator) {
		positions := position.View(it)
		velocities := velocity.View(it)
		names := name.ViewReadOnly(it)
		for i := 0; i < it.Len(); i++ {
			positions[i].X += velocities[i].X
			positions[i].Y += velocities[i].Y
			fmt.Printf("Updated %s to position (%.1f, %.1f)\n", names[i].Value, positions[i].X, positions[i].Y)
		}
	})

	// Output:
	// Found 4 entities with position and velocity
	// Updated Player to position (11.0, 22.0)
}

// Example_queries shows All/Any/None query composition.
func Example_queries() {
	w := gaia.NewWorld()
	position := gaia.Register[Position](w)
	velocity := gaia.Register[Velocity](w)
	name := gaia.Register[Name](w)

	spawn := func(withVelocity, withName bool) {
		for i := 0; i < 3; i++ {
			e := w.NewEntity()
			gaia.Set(w, e, Position{})
			if withVelocity {
				gaia.Set(w, e, Velocity{})
			}
			if withName {
				gaia.Set(w, e, Name{})
			}
		}
	}
	spawn(false, false)
	spawn(true, false)
	spawn(false, true)
	spawn(true, true)

	and := w.Query().All(position, velocity).Build()
	fmt.Printf("AND query matched %d entities\n", and.Count())

	or := w.Query().Any(velocity, name).Build()
	fmt.Printf("OR query matched %d entities\n", or.Count())

	not := w.Query().All(position).None(velocity).Build()
	fmt.Printf("NOT query matched %d entities\n", not.Count())

	// Output:
	// AND query matched 6 entities
	// OR query matched 9 entities
	// NOT query matched 6 entities
}
