// Package mapper assigns pseudonym components to real components and
// enforces the global non-collision invariant: no two distinct real
// components within a (category, role) ever receive the same
// pseudonym component.
package mapper

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/siherrmann/pseudonymizer/database"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/library"
	"github.com/siherrmann/pseudonymizer/model"
)

// DefaultMaxAttempts bounds the random sampling loop before the
// systematic fallback takes over.
const DefaultMaxAttempts = 100

// fallbackPrefixes name the systematic fallback sequence per category.
var fallbackPrefixes = map[model.Category]string{
	model.CategoryPerson:       "Person",
	model.CategoryLocation:     "Location",
	model.CategoryOrganization: "Organization",
}

type poolKey struct {
	category model.Category
	role     model.ComponentRole
}

// Mapper tracks real-component to pseudonym-component assignments.
// It owns the library pools' used-sets exclusively. Methods are NOT
// safe for concurrent use; all calls must go through the batch
// coordinator's single writer.
type Mapper struct {
	mappings    database.MappingsDBHandlerFunctions
	library     *library.Library
	used        map[poolKey]map[string]bool
	fallbackSeq map[poolKey]int
	maxAttempts int
	rng         *rand.Rand
	log         *slog.Logger
}

// NewMapper creates a mapper and hydrates the in-memory used-sets
// from the persisted mappings, so restarts cannot re-issue a
// pseudonym component that is already taken.
func NewMapper(mappings database.MappingsDBHandlerFunctions, lib *library.Library, logger *slog.Logger) (*Mapper, error) {
	if mappings == nil {
		return nil, helper.NewError("mappings handler validation", fmt.Errorf("mappings handler is nil"))
	}
	if lib == nil {
		return nil, helper.NewError("library validation", fmt.Errorf("library is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mapper{
		mappings:    mappings,
		library:     lib,
		used:        map[poolKey]map[string]bool{},
		fallbackSeq: map[poolKey]int{},
		maxAttempts: DefaultMaxAttempts,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         logger,
	}

	for _, category := range []model.Category{model.CategoryPerson, model.CategoryLocation, model.CategoryOrganization} {
		for _, role := range category.Roles() {
			key := poolKey{category: category, role: role}
			m.used[key] = map[string]bool{}

			persisted, err := mappings.SelectMappingsByRole(category, role)
			if err != nil {
				return nil, helper.NewError("hydrate used set", err)
			}
			for _, mapping := range persisted {
				m.used[key][mapping.PseudonymComponent] = true
				m.bumpFallbackSeq(key, mapping.PseudonymComponent)
			}
		}
	}

	return m, nil
}

// ResolveOrAssign returns the pseudonym component for a real
// component, assigning a new one on first sight. The returned bool
// reports whether a new mapping was created. Existing mappings are
// returned unchanged, so reprocessing is idempotent.
func (m *Mapper) ResolveOrAssign(realComponent string, role model.ComponentRole, category model.Category, gender model.Gender) (string, bool, error) {
	existing, err := m.mappings.SelectMapping(realComponent, role, category)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.PseudonymComponent, false, nil
	}

	key := poolKey{category: category, role: role}
	candidate, ok := m.sample(key, gender)
	if !ok {
		candidate = m.nextFallback(key)
	}

	err = m.mappings.InsertMapping(&model.ComponentMapping{
		RealComponent:      realComponent,
		Role:               role,
		Category:           category,
		PseudonymComponent: candidate,
	})
	if err != nil {
		return "", false, err
	}
	m.used[key][candidate] = true

	return candidate, true, nil
}

// ClusterScoped draws a pseudonym component for an ambiguous cluster.
// The component is reserved in the in-memory used-set so it cannot
// collide with any assignment in this run, but no component mapping
// is written: an ambiguous cluster must not contaminate future
// lookups with a guess.
func (m *Mapper) ClusterScoped(category model.Category, role model.ComponentRole, gender model.Gender) string {
	key := poolKey{category: category, role: role}
	candidate, ok := m.sample(key, gender)
	if !ok {
		candidate = m.nextFallback(key)
	}
	m.used[key][candidate] = true
	return candidate
}

// Reserve blocks a pseudonym component without writing a mapping.
// The engine replays the components of persisted cluster-scoped
// pseudonyms through it at construction, so a restart cannot hand the
// same component to a second identity.
func (m *Mapper) Reserve(category model.Category, role model.ComponentRole, pseudonymComponent string) {
	if pseudonymComponent == "" {
		return
	}
	key := poolKey{category: category, role: role}
	if m.used[key] == nil {
		m.used[key] = map[string]bool{}
	}
	m.used[key][pseudonymComponent] = true
	m.bumpFallbackSeq(key, pseudonymComponent)
}

// sample draws up to maxAttempts random candidates from the library
// pool and returns the first one not in the used-set. A pathological
// collision run or an exhausted pool returns ok=false, escalating to
// the fallback path; assignment never aborts for pool contention.
func (m *Mapper) sample(key poolKey, gender model.Gender) (string, bool) {
	candidates := m.library.Candidates(key.category, key.role, gender)
	if len(candidates) == 0 {
		m.log.Info(
			"Pseudonym pool is empty, using systematic fallback",
			slog.String("category", string(key.category)),
			slog.String("role", string(key.role)),
		)
		return "", false
	}

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		candidate := candidates[m.rng.Intn(len(candidates))]
		if !m.used[key][candidate] {
			return candidate, true
		}
	}

	m.log.Warn(
		"Pseudonym pool exhausted or collision retries exceeded, using systematic fallback",
		slog.String("category", string(key.category)),
		slog.String("role", string(key.role)),
		slog.Int("pool_size", len(candidates)),
		slog.Int("attempts", m.maxAttempts),
	)
	return "", false
}

// nextFallback produces the next systematic name for a pool, for
// example "Person-3". The name joins the used-set like any other
// assignment so it cannot collide with itself later.
func (m *Mapper) nextFallback(key poolKey) string {
	for {
		m.fallbackSeq[key]++
		candidate := fmt.Sprintf("%s-%d", fallbackPrefixes[key.category], m.fallbackSeq[key])
		if !m.used[key][candidate] {
			return candidate
		}
	}
}

// bumpFallbackSeq keeps the fallback sequence monotonic across
// restarts by advancing it past persisted fallback names.
func (m *Mapper) bumpFallbackSeq(key poolKey, pseudonym string) {
	prefix := fallbackPrefixes[key.category] + "-"
	var n int
	if _, err := fmt.Sscanf(pseudonym, prefix+"%d", &n); err == nil && n > m.fallbackSeq[key] {
		m.fallbackSeq[key] = n
	}
}
