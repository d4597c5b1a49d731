package model

import "time"

// Activity actions recorded by the console.
const (
	ActionLoad       = "load"
	ActionSave       = "save"
	ActionAddRole    = "add_role"
	ActionRemoveRole = "remove_role"
	ActionApply      = "apply"
)

// Activity is one entry of the console's audit trail.
type Activity struct {
	ID        int64     `json:"id" db:"id"`
	Action    string    `json:"action" db:"action"`
	Role      string    `json:"role,omitempty" db:"role"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	Endpoint  string    `json:"endpoint,omitempty" db:"endpoint"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ActivityFilter narrows ListActivity results.
type ActivityFilter struct {
	Role   string
	Action string
	Limit  int
}

// Setting is a key/value pair from the settings table.
type Setting struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}
