package dummy

import (
	"github.com/google/uuid"

	"github.com/flanksource/hse/models"
)

var JohnDoe = models.Person{
	ID:    uuid.MustParse("01653e30-39a6-482a-8a9c-2bb8debaf440"),
	Name:  "John Doe",
	Email: "john@doe.com",
}

var JohnWick = models.Person{
	ID:    uuid.MustParse("3b6e2e89-b7ab-4751-a2d1-1e205fa478f6"),
	Name:  "John Wick",
	Email: "john@wick.com",
}

// SafetyManager validates and closes incidents and receives the reports.
var SafetyManager = models.Person{
	ID:    uuid.MustParse("9f2a4c1e-5b7d-4e3a-8c6f-1d2e3f4a5b6c"),
	Name:  "Jane Roe",
	Email: "jane@roe.com",
	Admin: true,
}

var AllDummyPeople = []models.Person{JohnDoe, JohnWick, SafetyManager}
