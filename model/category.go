package model

import "fmt"

// Category is the closed set of entity categories the engine handles.
type Category string

const (
	CategoryPerson       Category = "PERSON"
	CategoryLocation     Category = "LOCATION"
	CategoryOrganization Category = "ORGANIZATION"
)

// ComponentRole identifies one decomposed piece of an identity's name.
type ComponentRole string

const (
	RoleFirstName ComponentRole = "first_name"
	RoleLastName  ComponentRole = "last_name"
	RoleToken     ComponentRole = "token"
)

// Gender is an optional hint used to pick pseudonym components from
// a matching pool. Unknown genders fall back to the full pool.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
	GenderUnknown Gender = "unknown"
)

// Valid reports whether the category is one of the supported values.
func (c Category) Valid() bool {
	switch c {
	case CategoryPerson, CategoryLocation, CategoryOrganization:
		return true
	}
	return false
}

// Roles returns the component roles valid for the category.
// PERSON decomposes into first and last name, LOCATION and
// ORGANIZATION are single-token categories.
func (c Category) Roles() []ComponentRole {
	switch c {
	case CategoryPerson:
		return []ComponentRole{RoleFirstName, RoleLastName}
	case CategoryLocation, CategoryOrganization:
		return []ComponentRole{RoleToken}
	default:
		return nil
	}
}

// ParseCategory converts a detector label to a Category.
// NER models commonly emit PER/ORG/LOC short labels, which are accepted too.
func ParseCategory(label string) (Category, error) {
	switch label {
	case "PERSON", "PER":
		return CategoryPerson, nil
	case "LOCATION", "LOC":
		return CategoryLocation, nil
	case "ORGANIZATION", "ORG":
		return CategoryOrganization, nil
	default:
		return "", fmt.Errorf("unknown entity category %q", label)
	}
}

// ParseGender converts a stored or hinted gender string to a Gender,
// defaulting to unknown.
func ParseGender(value string) Gender {
	switch Gender(value) {
	case GenderMale, GenderFemale, GenderNeutral:
		return Gender(value)
	default:
		return GenderUnknown
	}
}
