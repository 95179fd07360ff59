// Package library holds the themed pools of candidate pseudonym
// components. Pools are read-only at runtime; tracking which
// candidates are already used belongs to the component mapper.
package library

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
	"gopkg.in/yaml.v3"
)

//go:embed pools.yaml
var defaultPoolsYAML []byte

// genderAny is the pool key for components usable for every gender.
const genderAny = "any"

// Library is an ordered pool of candidate pseudonym components per
// category, role and gender.
type Library struct {
	pools map[model.Category]map[model.ComponentRole]map[string][]string
}

// Default loads the embedded pool file.
func Default() (*Library, error) {
	return LoadFromYAML(defaultPoolsYAML)
}

// LoadFromFile loads a caller-supplied pool file.
func LoadFromFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read library file", err)
	}
	return LoadFromYAML(data)
}

// LoadFromYAML parses and validates a pool definition.
func LoadFromYAML(data []byte) (*Library, error) {
	var raw map[string]map[string]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, helper.NewError("parse library yaml", err)
	}

	pools := map[model.Category]map[model.ComponentRole]map[string][]string{}
	for categoryKey, roles := range raw {
		category, err := model.ParseCategory(categoryKey)
		if err != nil {
			return nil, helper.NewError("validate library category", err)
		}

		valid := map[model.ComponentRole]bool{}
		for _, role := range category.Roles() {
			valid[role] = true
		}

		pools[category] = map[model.ComponentRole]map[string][]string{}
		for roleKey, genders := range roles {
			role := model.ComponentRole(roleKey)
			if !valid[role] {
				return nil, helper.NewError("validate library role", fmt.Errorf("role %q is not valid for category %q", roleKey, categoryKey))
			}
			pools[category][role] = map[string][]string{}
			for genderKey, values := range genders {
				if genderKey != genderAny && model.ParseGender(genderKey) == model.GenderUnknown {
					return nil, helper.NewError("validate library gender", fmt.Errorf("unknown gender key %q", genderKey))
				}
				pools[category][role][genderKey] = values
			}
		}
	}

	return &Library{pools: pools}, nil
}

// Candidates returns the ordered candidate pool for a category and
// role, filtered by gender when known. An unknown gender, or a gender
// without its own pool, falls back to the full role pool.
func (l *Library) Candidates(category model.Category, role model.ComponentRole, gender model.Gender) []string {
	roles, ok := l.pools[category]
	if !ok {
		return nil
	}
	genders, ok := roles[role]
	if !ok {
		return nil
	}

	if gender != model.GenderUnknown && gender != "" {
		if pool, ok := genders[string(gender)]; ok && len(pool) > 0 {
			return pool
		}
	}

	var all []string
	for _, key := range []string{genderAny, string(model.GenderMale), string(model.GenderFemale), string(model.GenderNeutral)} {
		all = append(all, genders[key]...)
	}
	return all
}

// PoolSize returns the total number of candidates for a category and
// role across all genders.
func (l *Library) PoolSize(category model.Category, role model.ComponentRole) int {
	return len(l.Candidates(category, role, model.GenderUnknown))
}
