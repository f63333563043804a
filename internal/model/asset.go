// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Category is one of the fixed catalog categories.
type Category string

const (
	CategoryPeople   Category = "People"
	CategoryUrban    Category = "Urban"
	CategoryCulture  Category = "Culture"
	CategoryNature   Category = "Nature"
	CategoryWildlife Category = "Wildlife"
	CategoryFood     Category = "Food"
	CategoryBusiness Category = "Business"
	CategoryOther    Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryPeople,
	CategoryUrban,
	CategoryCulture,
	CategoryNature,
	CategoryWildlife,
	CategoryFood,
	CategoryBusiness,
	CategoryOther,
}

// ParseCategory matches s case-insensitively against Categories and returns the
// canonical spelling.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// MediaKind tells image and video uploads apart.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// State is the moderation state of a stored asset. Rejected assets have no
// record left.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
)

// Asset is an uploaded image or video plus its moderation flag.
//
// Approved is the only visibility gate: catalog reads return an asset if and
// only if Approved is true.
type Asset struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Category    Category  `json:"category"`
	MediaKind   MediaKind `json:"mediaKind"`
	StoragePath string    `json:"storagePath"`
	UploaderID  string    `json:"uploaderId"`
	Approved    bool      `json:"approved"`
	Downloads   int64     `json:"downloads"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Rejecting is set before a reject touches the blob. A rejecting asset
	// cannot be approved.
	Rejecting bool `json:"-"`
	// BlobRemoved is set when a reject deleted the blob but not yet the record.
	BlobRemoved bool `json:"-"`

	// UploaderUsername is filled by queries that join profiles.
	UploaderUsername string `json:"uploaderUsername,omitempty"`
}

// State derives the moderation state from the approved flag.
func (a *Asset) State() State {
	if a.Approved {
		return StateApproved
	}
	return StatePending
}
