// Package ruleset ranks candidate pools against ordered rule lists.
//
// A ruleset is an ordered list of rules. A candidate matching an earlier rule
// outranks a candidate matching a later one; candidates matching no rule are
// discarded. Rules may be specialised by filter fields (country_code, for
// example), in which case the pool is first unified on those fields so that
// every candidate is ranked against the same rule subset.
package ruleset

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/tripforge/geopipeline/internal/model"
)

// Rule maps candidate field names to required values. A missing field places
// no constraint on the candidate.
type Rule map[string]string

// UnmarshalJSON accepts string, numeric and null rule values. Numbers are
// normalised to their decimal string form and nulls are dropped, which makes
// them equivalent to absent fields.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Rule, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = model.FormatDecimal(val)
		case nil:
		default:
			return eris.Errorf("ruleset: rule field %q has unsupported type %T", k, v)
		}
	}
	*r = out
	return nil
}

// Schema describes the fields a definition's rules may reference.
type Schema struct {
	Fields   []string `json:"fields"`
	Required []string `json:"required"`
	Filter   []string `json:"filter,omitempty"`
}

// Definition is the serialised form of a ruleset.
type Definition struct {
	Schema Schema `json:"schema"`
	Rules  []Rule `json:"rules"`
}

// Ruleset filters and ranks candidates against an ordered rule list.
type Ruleset struct {
	rules        []Rule
	filterFields []string
}

// New builds a ruleset from its definition.
func New(def Definition) *Ruleset {
	return &Ruleset{rules: def.Rules, filterFields: def.Schema.Filter}
}

// Load reads a versioned definition file, named "<name>-ruleset-<version>.json"
// under dir.
func Load(dir, name, version string) (*Ruleset, error) {
	path := dir + "/" + name + "-ruleset-" + version + ".json"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading ruleset %s", path)
	}
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, eris.Wrapf(err, "decoding ruleset %s", path)
	}
	return New(def), nil
}

// Finalist is a candidate that matched some rule, with its 1-based rank.
type Finalist struct {
	Candidate model.Candidate
	Rank      int
}

// isMatch reports whether the candidate satisfies every constrained field of
// the rule. A candidate missing a constrained field cannot be trusted and
// never matches. Numeric candidate values pass when they meet or exceed the
// rule value; everything else compares by equality.
func isMatch(rule Rule, c model.Candidate) bool {
	for field, want := range rule {
		if want == "" {
			continue
		}
		got, ok := c.RuleField(field)
		if !ok {
			return false
		}

		if gotNum, err := model.ParseDecimal(got); err == nil {
			wantNum, err := model.ParseDecimal(want)
			if err != nil {
				return false
			}
			if gotNum < wantNum {
				return false
			}
		} else if got != want {
			return false
		}
	}
	return true
}

// FilterRules returns the rules whose filter fields agree with the given
// values. Agreement means equal values, or both unset.
func (rs *Ruleset) FilterRules(unified map[string]string) []Rule {
	var out []Rule
	for _, rule := range rs.rules {
		match := true
		for _, field := range rs.filterFields {
			if unified[field] != rule[field] {
				match = false
				break
			}
		}
		if match {
			out = append(out, rule)
		}
	}
	return out
}

// obtainRules selects the rule subset for the unified filter values, falling
// back to the rules with all filter fields unset when nothing matches.
func (rs *Ruleset) obtainRules(unified map[string]string) []Rule {
	if rules := rs.FilterRules(unified); len(rules) > 0 {
		return rules
	}
	return rs.FilterRules(map[string]string{})
}

// rankCandidate returns the 1-based position of the first rule the candidate
// matches, or zero.
func rankCandidate(c model.Candidate, rules []Rule) int {
	for i, rule := range rules {
		if isMatch(rule, c) {
			return i + 1
		}
	}
	return 0
}

// Rank unifies the pool on the filter fields, selects the matching rule
// subset and returns every candidate that matched a rule together with its
// rank. Ranks from different filter subsets are not comparable, which is why
// unification happens before ranking.
func (rs *Ruleset) Rank(candidates []model.Candidate) []Finalist {
	unified := make(map[string]string, len(rs.filterFields))
	for _, field := range rs.filterFields {
		unified[field] = UnifyField(candidates, field, true)
	}
	rules := rs.obtainRules(unified)

	var finalists []Finalist
	for _, c := range candidates {
		if rank := rankCandidate(c, rules); rank > 0 {
			finalists = append(finalists, Finalist{Candidate: c, Rank: rank})
		}
	}
	return finalists
}

// TopRanked returns the best ranked finalist. The second return is false when
// no candidate matched any rule.
func (rs *Ruleset) TopRanked(candidates []model.Candidate) (model.Candidate, bool) {
	finalists := rs.Rank(candidates)
	if len(finalists) == 0 {
		return model.Candidate{}, false
	}
	best := finalists[0]
	for _, f := range finalists[1:] {
		if f.Rank < best.Rank {
			best = f
		}
	}
	return best.Candidate, true
}

// UnifyField collapses the candidates' values for a field into one. Unset
// values do not vote. Without veto the majority value wins; with veto the
// voters must be unanimous and any disagreement yields the empty value.
func UnifyField(candidates []model.Candidate, field string, veto bool) string {
	counts := make(map[string]int)
	var order []string
	for _, c := range candidates {
		v, ok := c.RuleField(field)
		if !ok {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	if veto && len(counts) != 1 {
		return ""
	}
	if len(counts) == 0 {
		return ""
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order[0]
}
