package models

import (
	"strconv"
	"strings"
	"time"
)

// Tag labels contacts. Names are unique.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Contact is an address book entry with its tags.
type Contact struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	PhoneLandline string    `json:"phone_landline"`
	PhoneMobile   string    `json:"phone_mobile"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	Notes         string    `json:"notes"`
	Tags          []Tag     `json:"tags"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

// ContactInput is the writable part of a contact. Tags holds tag ids.
type ContactInput struct {
	Name          string  `json:"name"`
	PhoneLandline string  `json:"phone_landline"`
	PhoneMobile   string  `json:"phone_mobile"`
	Email         string  `json:"email"`
	Address       string  `json:"address"`
	Notes         string  `json:"notes"`
	Tags          []int64 `json:"tags"`
}

// Normalize trims surrounding whitespace and drops duplicate tag ids.
func (in *ContactInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.PhoneLandline = strings.TrimSpace(in.PhoneLandline)
	in.PhoneMobile = strings.TrimSpace(in.PhoneMobile)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	in.Notes = strings.TrimSpace(in.Notes)

	seen := make(map[int64]bool, len(in.Tags))
	tags := in.Tags[:0]
	for _, id := range in.Tags {
		if seen[id] {
			continue
		}
		seen[id] = true
		tags = append(tags, id)
	}
	in.Tags = tags
}

// HasTag reports whether the contact carries a tag matching filter. The
// filter is a tag id or a tag name compared case-insensitively; a leading
// ':' is ignored, so ":3", "3" and "Clientes" are all accepted.
func (c *Contact) HasTag(filter string) bool {
	filter = strings.TrimPrefix(filter, ":")
	if filter == "" {
		return true
	}
	for _, t := range c.Tags {
		if strconv.FormatInt(t.ID, 10) == filter || strings.EqualFold(t.Name, filter) {
			return true
		}
	}
	return false
}
