package model

import (
	"time"
)

// Audit holds the created/modified stamps shared by patients and addresses.
type Audit struct {
	CreatedDate      time.Time `db:"created_date" json:"createdDate"`
	CreatedBy        int       `db:"created_by" json:"createdBy"`
	LastModifiedDate time.Time `db:"last_modified_date" json:"lastModifiedDate"`
	LastModifiedBy   int       `db:"last_modified_by" json:"lastModifiedBy"`
}

// Page describes a slice of an ordered listing.
type Page struct {
	Offset int
	Limit  int
}
