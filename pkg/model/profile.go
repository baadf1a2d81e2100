package model

import "time"

// Profile describes the user the agent answers for
type Profile struct {
	UserID      string            `yaml:"user_id"`
	DisplayName string            `yaml:"display_name"`
	Bio         string            `yaml:"bio"`
	Interests   []string          `yaml:"interests"`
	Preferences map[string]string `yaml:"preferences"`

	UpdatedAt time.Time `yaml:"-"`
}
