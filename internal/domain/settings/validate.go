package settings

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

var builtinRankingRules = map[string]bool{
	"words": true, "typo": true, "proximity": true, "attribute": true, "sort": true, "exactness": true,
}

// Validate checks raw field by field. Errors are returned in field declaration order,
// depth first, so the first one is the one a single-error response surfaces.
func Validate(raw Settings[Unchecked], features Features) (Settings[Checked], errcode.Errors) {
	var errs errcode.Errors
	add := func(field string, es errcode.Errors) {
		errs = append(errs, es.In(field)...)
	}

	if v, ok := raw.DisplayedAttributes.Get(); ok {
		add("displayedAttributes", validateAttributeList(v, errcode.InvalidSettingsDisplayedAttributes, true))
	}
	if v, ok := raw.SearchableAttributes.Get(); ok {
		add("searchableAttributes", validateAttributeList(v, errcode.InvalidSettingsSearchableAttributes, true))
	}
	if v, ok := raw.FilterableAttributes.Get(); ok {
		add("filterableAttributes", validateAttributeList(v, errcode.InvalidSettingsFilterableAttributes, false))
	}
	if v, ok := raw.SortableAttributes.Get(); ok {
		add("sortableAttributes", validateAttributeList(v, errcode.InvalidSettingsSortableAttributes, false))
	}
	if v, ok := raw.RankingRules.Get(); ok {
		add("rankingRules", validateRankingRules(v))
	}
	if v, ok := raw.StopWords.Get(); ok {
		add("stopWords", validateWords(v, errcode.InvalidSettingsStopWords))
	}
	if v, ok := raw.NonSeparatorTokens.Get(); ok {
		add("nonSeparatorTokens", validateWords(v, errcode.InvalidSettingsNonSeparatorTokens))
	}
	if v, ok := raw.SeparatorTokens.Get(); ok {
		add("separatorTokens", validateWords(v, errcode.InvalidSettingsSeparatorTokens))
	}
	if v, ok := raw.Dictionary.Get(); ok {
		add("dictionary", validateWords(v, errcode.InvalidSettingsDictionary))
	}
	if v, ok := raw.Synonyms.Get(); ok {
		add("synonyms", validateSynonyms(v))
	}
	if v, ok := raw.DistinctAttribute.Get(); ok {
		if err := checkAttribute(v, errcode.InvalidSettingsDistinctAttribute); err != nil {
			add("distinctAttribute", errcode.Errors{err})
		}
	}
	if v, ok := raw.ProximityPrecision.Get(); ok && v != ProximityByWord && v != ProximityByAttribute {
		add("proximityPrecision", errcode.Errors{errcode.New(errcode.InvalidSettingsProximityPrecision,
			"unknown value `%s`, expected one of `byWord`, `byAttribute`", v)})
	}
	if v, ok := raw.TypoTolerance.Get(); ok {
		add("typoTolerance", validateTypo(v))
	}
	if v, ok := raw.Faceting.Get(); ok {
		add("faceting", validateFaceting(v))
	}
	if v, ok := raw.Pagination.Get(); ok {
		if n, ok := v.MaxTotalHits.Get(); ok && n <= 0 {
			add("pagination", errcode.Errors{errcode.New(errcode.InvalidSettingsPagination,
				"`maxTotalHits` must be positive, got %d", n).In("maxTotalHits")})
		}
	}
	if v, ok := raw.Embedders.Get(); ok {
		add("embedders", validateEmbedders(v))
	}
	if v, ok := raw.LocalizedAttributes.Get(); ok {
		add("localizedAttributes", validateLocalized(v, features))
	}
	if v, ok := raw.SearchCutoffMs.Get(); ok && v == 0 {
		add("searchCutoffMs", errcode.Errors{errcode.New(errcode.InvalidSettingsSearchCutoffMs,
			"`searchCutoffMs` must be positive")})
	}

	if len(errs) > 0 {
		return Settings[Checked]{}, errs
	}
	return convert[Checked](raw), nil
}

func checkAttribute(name string, code errcode.Code) *errcode.Error {
	if name == "" {
		return errcode.New(code, "attribute name must not be empty")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errcode.New(code, "attribute name `%s` must not contain whitespace", name)
	}
	return nil
}

func validateAttributeList(attrs []string, code errcode.Code, allowWildcard bool) errcode.Errors {
	var errs errcode.Errors
	seen := make(map[string]bool, len(attrs))
	for i, a := range attrs {
		switch {
		case a == "*" && !allowWildcard:
			errs = append(errs, errcode.New(code, "wildcard `*` is not allowed here").At(i))
		case a == "*" && len(attrs) > 1:
			errs = append(errs, errcode.New(code, "wildcard `*` must be the only entry").At(i))
		case a != "*":
			if err := checkAttribute(a, code); err != nil {
				errs = append(errs, err.At(i))
				continue
			}
		}
		if seen[a] {
			errs = append(errs, errcode.New(code, "duplicate attribute `%s`", a).At(i))
		}
		seen[a] = true
	}
	return errs
}

// ParseRankingRule returns the attribute and direction of a custom rule, or ok=false for
// built-ins and malformed rules.
func ParseRankingRule(rule string) (attr, dir string, ok bool) {
	i := strings.LastIndexByte(rule, ':')
	if i <= 0 {
		return "", "", false
	}
	attr, dir = rule[:i], rule[i+1:]
	if dir != "asc" && dir != "desc" {
		return "", "", false
	}
	if checkAttribute(attr, errcode.InvalidSettingsRankingRules) != nil {
		return "", "", false
	}
	return attr, dir, true
}

func validateRankingRules(rules []string) errcode.Errors {
	var errs errcode.Errors
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if !builtinRankingRules[r] {
			if _, _, ok := ParseRankingRule(r); !ok {
				errs = append(errs, errcode.New(errcode.InvalidSettingsRankingRules,
					"`%s` ranking rule is invalid. Valid ranking rules are words, typo, sort, proximity, "+
						"attribute, exactness and custom ranking rules", r).At(i))
				continue
			}
		}
		if seen[r] {
			errs = append(errs, errcode.New(errcode.InvalidSettingsRankingRules,
				"duplicate ranking rule `%s`", r).At(i))
		}
		seen[r] = true
	}
	return errs
}

func checkText(s string, code errcode.Code) *errcode.Error {
	switch {
	case s == "":
		return errcode.New(code, "value must not be empty")
	case !utf8.ValidString(s):
		return errcode.New(code, "value is not valid UTF-8")
	case !norm.NFC.IsNormalString(s):
		return errcode.New(code, "`%s` is not in Unicode normalization form C", s)
	}
	return nil
}

func validateWords(words []string, code errcode.Code) errcode.Errors {
	var errs errcode.Errors
	for i, w := range words {
		if err := checkText(w, code); err != nil {
			errs = append(errs, err.At(i))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateSynonyms(syn map[string][]string) errcode.Errors {
	var errs errcode.Errors
	for _, k := range sortedKeys(syn) {
		if err := checkText(k, errcode.InvalidSettingsSynonyms); err != nil {
			errs = append(errs, err.In(k))
			continue
		}
		errs = append(errs, validateWords(syn[k], errcode.InvalidSettingsSynonyms).In(k)...)
	}
	return errs
}

func validateTypo(t TypoTolerance) errcode.Errors {
	var errs errcode.Errors
	if m, ok := t.MinWordSizeForTypos.Get(); ok {
		one, oneSet := m.OneTypo.Get()
		two, twoSet := m.TwoTypos.Get()
		if oneSet && twoSet && one > two {
			errs = append(errs, errcode.New(errcode.InvalidSettingsTypoTolerance,
				"`oneTypo` (%d) must be less than or equal to `twoTypos` (%d)", one, two).
				In("oneTypo").In("minWordSizeForTypos"))
		}
	}
	if w, ok := t.DisableOnWords.Get(); ok {
		errs = append(errs, validateWords(w, errcode.InvalidSettingsTypoTolerance).In("disableOnWords")...)
	}
	if a, ok := t.DisableOnAttributes.Get(); ok {
		errs = append(errs, validateAttributeList(a, errcode.InvalidSettingsTypoTolerance, false).In("disableOnAttributes")...)
	}
	return errs
}

func validateFaceting(f Faceting) errcode.Errors {
	var errs errcode.Errors
	if n, ok := f.MaxValuesPerFacet.Get(); ok && n <= 0 {
		errs = append(errs, errcode.New(errcode.InvalidSettingsFaceting,
			"`maxValuesPerFacet` must be positive, got %d", n).In("maxValuesPerFacet"))
	}
	if m, ok := f.SortFacetValuesBy.Get(); ok {
		for _, k := range sortedKeys(m) {
			if v := m[k]; v != FacetSortAlpha && v != FacetSortCount {
				errs = append(errs, errcode.New(errcode.InvalidSettingsFaceting,
					"unknown value `%s`, expected one of `alpha`, `count`", v).In(k).In("sortFacetValuesBy"))
			}
		}
	}
	return errs
}

func validateEmbedders(m Embedders) errcode.Errors {
	var errs errcode.Errors
	for _, name := range m.Names() {
		if name == "" {
			errs = append(errs, errcode.New(errcode.InvalidSettingsEmbedders, "embedder name must not be empty").In(name))
			continue
		}
		if e, ok := m.Get(name).Get(); ok {
			errs = append(errs, validateEmbedder(e).In(name)...)
		}
	}
	return errs
}

func validateLocalized(rules []LocalizedAttributesRule, features Features) errcode.Errors {
	var errs errcode.Errors
	for i, r := range rules {
		for j, p := range r.AttributePatterns {
			if p == "" {
				errs = append(errs, errcode.New(errcode.InvalidSettingsLocalizedAttributes,
					"attribute pattern must not be empty").At(j).In("attributePatterns").At(i))
			}
		}
		for j, l := range r.Locales {
			feature, known := LocaleFeature(l)
			switch {
			case !known:
				errs = append(errs, errcode.New(errcode.InvalidSettingsLocalizedAttributes,
					"unknown locale `%s`", l).At(j).In("locales").At(i))
			case feature != "" && !features.Enabled(feature):
				errs = append(errs, errcode.New(errcode.UnsupportedLocale,
					"locale `%s` requires the `%s` tokenizer feature, which is not enabled", l, feature).
					At(j).In("locales").At(i))
			}
		}
	}
	return errs
}
