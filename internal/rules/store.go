package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/storage"
)

// Storage keys for the three rule lists and the seed marker.
const (
	keyCategoryRules = "rules/category"
	keyAliasRules    = "rules/alias"
	keyPolarityRules = "rules/polarity"
	keySeedVersion   = "rules/seedVersion"

	// SeedVersion gates brand-catalog seeding. Bump when brands.yaml
	// changes in a way that should be re-seeded into existing stores.
	SeedVersion = 1
)

// Store persists the ordered rule lists behind a storage.Port.
type Store struct {
	port storage.Port
}

// NewStore wraps a persistence port.
func NewStore(port storage.Port) *Store {
	return &Store{port: port}
}

func (s *Store) loadList(key string, out any) error {
	data, found, err := s.port.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !found {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) saveList(key string, list any) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.port.Set(key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// CategoryRules returns the stored category rule list in order.
func (s *Store) CategoryRules() ([]CategoryRule, error) {
	var list []CategoryRule
	if err := s.loadList(keyCategoryRules, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AliasRules returns the stored alias rule list in order.
func (s *Store) AliasRules() ([]AliasRule, error) {
	var list []AliasRule
	if err := s.loadList(keyAliasRules, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// PolarityRules returns the stored polarity rule list in order.
func (s *Store) PolarityRules() ([]PolarityRule, error) {
	var list []PolarityRule
	if err := s.loadList(keyPolarityRules, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// UpsertCategoryRule inserts or replaces a rule. Keys are unique per
// source: an existing rule with the same normalized key and source is
// replaced in place, so repeated edits never accumulate duplicates.
func (s *Store) UpsertCategoryRule(rule CategoryRule) (CategoryRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Key = normalizeKey(rule.Key)
	if rule.Key == "" {
		return CategoryRule{}, fmt.Errorf("category rule key cannot be empty")
	}

	list, err := s.CategoryRules()
	if err != nil {
		return CategoryRule{}, err
	}
	replaced := false
	for i, existing := range list {
		if existing.Source == rule.Source && existing.Key == rule.Key {
			rule.ID = existing.ID
			list[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, rule)
	}
	if err := s.saveList(keyCategoryRules, list); err != nil {
		return CategoryRule{}, err
	}
	return rule, nil
}

// DeleteCategoryRule removes a rule by id. Missing ids are a no-op.
func (s *Store) DeleteCategoryRule(id string) error {
	list, err := s.CategoryRules()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, r := range list {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return s.saveList(keyCategoryRules, kept)
}

// SaveCategoryRules replaces the category rule list wholesale, assigning
// ids and normalizing keys. Used when adopting a synced rule set; rules
// whose key normalizes to empty are dropped.
func (s *Store) SaveCategoryRules(list []CategoryRule) error {
	kept := make([]CategoryRule, 0, len(list))
	for _, r := range list {
		r.Key = normalizeKey(r.Key)
		if r.Key == "" {
			continue
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		kept = append(kept, r)
	}
	return s.saveList(keyCategoryRules, kept)
}

// SaveAliasRules replaces the alias rule list, assigning ids to new rules.
func (s *Store) SaveAliasRules(list []AliasRule) error {
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = uuid.NewString()
		}
	}
	return s.saveList(keyAliasRules, list)
}

// SavePolarityRules replaces the polarity rule list, assigning ids to new
// rules.
func (s *Store) SavePolarityRules(list []PolarityRule) error {
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = uuid.NewString()
		}
	}
	return s.saveList(keyPolarityRules, list)
}

// SeedBrands loads the embedded catalog into the store as brand-source
// category rules. Seeding is idempotent: a version marker records the last
// seeded catalog version and the seed is skipped when it is current, so
// repeated startups never duplicate rules.
func (s *Store) SeedBrands() error {
	data, found, err := s.port.Get(keySeedVersion)
	if err != nil {
		return fmt.Errorf("failed to read seed marker: %w", err)
	}
	if found {
		if v, err := strconv.Atoi(string(data)); err == nil && v >= SeedVersion {
			return nil
		}
	}

	catalog, err := LoadCatalog()
	if err != nil {
		return err
	}

	// Deterministic seed order: categories sorted, terms in file order.
	categories := make([]string, 0, len(catalog.Brands))
	for cat := range catalog.Brands {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		for _, term := range catalog.Brands[cat] {
			_, err := s.UpsertCategoryRule(CategoryRule{
				Source:   SourceBrand,
				Key:      term,
				Category: domain.Category(cat),
			})
			if err != nil {
				return fmt.Errorf("failed to seed brand %q: %w", term, err)
			}
		}
	}

	// Default polarity corrections for flows that post unsigned. Only
	// written when the user has no polarity rules yet.
	polarity, err := s.PolarityRules()
	if err != nil {
		return err
	}
	if len(polarity) == 0 {
		err = s.SavePolarityRules([]PolarityRule{
			{Pattern: `payroll|direct\s*dep`, As: PolarityDeposit},
			{Pattern: `refund|reimb|rebate`, As: PolarityDeposit},
			{Pattern: `interest\s*(earned|payment)`, As: PolarityDeposit},
		})
		if err != nil {
			return err
		}
	}

	if err := s.port.Set(keySeedVersion, []byte(strconv.Itoa(SeedVersion))); err != nil {
		return fmt.Errorf("failed to write seed marker: %w", err)
	}
	return nil
}

// Engine builds a rules engine from the currently stored lists.
func (s *Store) Engine() (*Engine, error) {
	cats, err := s.CategoryRules()
	if err != nil {
		return nil, err
	}
	aliases, err := s.AliasRules()
	if err != nil {
		return nil, err
	}
	polarity, err := s.PolarityRules()
	if err != nil {
		return nil, err
	}
	return NewEngine(cats, aliases, polarity), nil
}
