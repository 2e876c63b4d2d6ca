package models

// User is the read model of a profile owned by the auth service.
type User struct {
	ID           string `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	FirstName    string `db:"first_name" json:"firstName"`
	LastName     string `db:"last_name" json:"lastName"`
	Image        string `db:"image" json:"image,omitempty"`
	Color        int    `db:"color" json:"color"`
	ProfileSetup bool   `db:"profile_setup" json:"profileSetup"`
}
