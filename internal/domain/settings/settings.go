// Package settings models partial index configuration and its validation.
package settings

// Unchecked marks settings received from a caller or read from storage that were not
// validated yet.
type Unchecked struct{}

// Checked marks settings that went through Validate.
type Checked struct{}

// Settings is a partial index configuration. The type parameter is a phantom marker:
// only Validate produces Settings[Checked].
type Settings[T any] struct {
	DisplayedAttributes  Setting[[]string]                  `json:"displayedAttributes,omitzero"`
	SearchableAttributes Setting[[]string]                  `json:"searchableAttributes,omitzero"`
	FilterableAttributes Setting[[]string]                  `json:"filterableAttributes,omitzero"`
	SortableAttributes   Setting[[]string]                  `json:"sortableAttributes,omitzero"`
	RankingRules         Setting[[]string]                  `json:"rankingRules,omitzero"`
	StopWords            Setting[[]string]                  `json:"stopWords,omitzero"`
	NonSeparatorTokens   Setting[[]string]                  `json:"nonSeparatorTokens,omitzero"`
	SeparatorTokens      Setting[[]string]                  `json:"separatorTokens,omitzero"`
	Dictionary           Setting[[]string]                  `json:"dictionary,omitzero"`
	Synonyms             Setting[map[string][]string]       `json:"synonyms,omitzero"`
	DistinctAttribute    Setting[string]                    `json:"distinctAttribute,omitzero"`
	ProximityPrecision   Setting[ProximityPrecision]        `json:"proximityPrecision,omitzero"`
	TypoTolerance        Setting[TypoTolerance]             `json:"typoTolerance,omitzero"`
	Faceting             Setting[Faceting]                  `json:"faceting,omitzero"`
	Pagination           Setting[Pagination]                `json:"pagination,omitzero"`
	Embedders            Setting[Embedders]                 `json:"embedders,omitzero"`
	LocalizedAttributes  Setting[[]LocalizedAttributesRule] `json:"localizedAttributes,omitzero"`
	SearchCutoffMs       Setting[uint64]                    `json:"searchCutoffMs,omitzero"`

	_ [0]T
}

// ProximityPrecision controls how word proximity is computed.
type ProximityPrecision string

// Proximity precisions.
const (
	ProximityByWord      ProximityPrecision = "byWord"
	ProximityByAttribute ProximityPrecision = "byAttribute"
)

// TypoTolerance configures typo handling.
type TypoTolerance struct {
	Enabled             Setting[bool]                `json:"enabled,omitzero"`
	MinWordSizeForTypos Setting[MinWordSizeForTypos] `json:"minWordSizeForTypos,omitzero"`
	DisableOnWords      Setting[[]string]            `json:"disableOnWords,omitzero"`
	DisableOnAttributes Setting[[]string]            `json:"disableOnAttributes,omitzero"`
}

func (t TypoTolerance) merge(p TypoTolerance) TypoTolerance {
	return TypoTolerance{
		Enabled:             t.Enabled.Merge(p.Enabled),
		MinWordSizeForTypos: t.MinWordSizeForTypos.Merge(p.MinWordSizeForTypos),
		DisableOnWords:      t.DisableOnWords.Merge(p.DisableOnWords),
		DisableOnAttributes: t.DisableOnAttributes.Merge(p.DisableOnAttributes),
	}
}

func (t TypoTolerance) resetUnset() TypoTolerance {
	out := TypoTolerance{
		Enabled:             resetIfUnset(t.Enabled),
		MinWordSizeForTypos: resetIfUnset(t.MinWordSizeForTypos),
		DisableOnWords:      resetIfUnset(t.DisableOnWords),
		DisableOnAttributes: resetIfUnset(t.DisableOnAttributes),
	}
	if v, ok := out.MinWordSizeForTypos.Get(); ok {
		out.MinWordSizeForTypos = Set(v.resetUnset())
	}
	return out
}

// MinWordSizeForTypos sets the word lengths from which one or two typos are allowed.
type MinWordSizeForTypos struct {
	OneTypo  Setting[uint8] `json:"oneTypo,omitzero"`
	TwoTypos Setting[uint8] `json:"twoTypos,omitzero"`
}

func (m MinWordSizeForTypos) merge(p MinWordSizeForTypos) MinWordSizeForTypos {
	return MinWordSizeForTypos{OneTypo: m.OneTypo.Merge(p.OneTypo), TwoTypos: m.TwoTypos.Merge(p.TwoTypos)}
}

func (m MinWordSizeForTypos) resetUnset() MinWordSizeForTypos {
	return MinWordSizeForTypos{OneTypo: resetIfUnset(m.OneTypo), TwoTypos: resetIfUnset(m.TwoTypos)}
}

// Faceting configures facet value retrieval.
type Faceting struct {
	MaxValuesPerFacet Setting[int]                       `json:"maxValuesPerFacet,omitzero"`
	SortFacetValuesBy Setting[map[string]FacetSortOrder] `json:"sortFacetValuesBy,omitzero"`
}

// FacetSortOrder orders facet values.
type FacetSortOrder string

// Facet sort orders.
const (
	FacetSortAlpha FacetSortOrder = "alpha"
	FacetSortCount FacetSortOrder = "count"
)

func (f Faceting) merge(p Faceting) Faceting {
	return Faceting{
		MaxValuesPerFacet: f.MaxValuesPerFacet.Merge(p.MaxValuesPerFacet),
		SortFacetValuesBy: f.SortFacetValuesBy.Merge(p.SortFacetValuesBy),
	}
}

func (f Faceting) resetUnset() Faceting {
	return Faceting{
		MaxValuesPerFacet: resetIfUnset(f.MaxValuesPerFacet),
		SortFacetValuesBy: resetIfUnset(f.SortFacetValuesBy),
	}
}

// Pagination bounds the reachable result window.
type Pagination struct {
	MaxTotalHits Setting[int] `json:"maxTotalHits,omitzero"`
}

func (p Pagination) merge(o Pagination) Pagination {
	return Pagination{MaxTotalHits: p.MaxTotalHits.Merge(o.MaxTotalHits)}
}

func (p Pagination) resetUnset() Pagination {
	return Pagination{MaxTotalHits: resetIfUnset(p.MaxTotalHits)}
}

// LocalizedAttributesRule binds attribute patterns to tokenizer locales.
type LocalizedAttributesRule struct {
	AttributePatterns []string `json:"attributePatterns"`
	Locales           []string `json:"locales"`
}

// DefaultRankingRules is the engine's ranking rule order.
var DefaultRankingRules = []string{"words", "typo", "proximity", "attribute", "sort", "exactness"}

// Defaults returns the engine defaults. Fields without a default value are Reset.
func Defaults() Settings[Checked] {
	return Settings[Checked]{
		DisplayedAttributes:  Set([]string{"*"}),
		SearchableAttributes: Set([]string{"*"}),
		FilterableAttributes: Set([]string{}),
		SortableAttributes:   Set([]string{}),
		RankingRules:         Set(append([]string(nil), DefaultRankingRules...)),
		StopWords:            Set([]string{}),
		NonSeparatorTokens:   Set([]string{}),
		SeparatorTokens:      Set([]string{}),
		Dictionary:           Set([]string{}),
		Synonyms:             Set(map[string][]string{}),
		DistinctAttribute:    Reset[string](),
		ProximityPrecision:   Set(ProximityByWord),
		TypoTolerance: Set(TypoTolerance{
			Enabled: Set(true),
			MinWordSizeForTypos: Set(MinWordSizeForTypos{
				OneTypo:  Set[uint8](5),
				TwoTypos: Set[uint8](9),
			}),
			DisableOnWords:      Set([]string{}),
			DisableOnAttributes: Set([]string{}),
		}),
		Faceting: Set(Faceting{
			MaxValuesPerFacet: Set(100),
			SortFacetValuesBy: Set(map[string]FacetSortOrder{"*": FacetSortAlpha}),
		}),
		Pagination:          Set(Pagination{MaxTotalHits: Set(1000)}),
		Embedders:           Set(NewEmbedders(nil)),
		LocalizedAttributes: Reset[[]LocalizedAttributesRule](),
		SearchCutoffMs:      Reset[uint64](),
	}
}

// Merge applies patch on top of s field by field. Patches must be merged in the order
// the caller issued them.
func (s Settings[T]) Merge(patch Settings[T]) Settings[T] {
	return Settings[T]{
		DisplayedAttributes:  s.DisplayedAttributes.Merge(patch.DisplayedAttributes),
		SearchableAttributes: s.SearchableAttributes.Merge(patch.SearchableAttributes),
		FilterableAttributes: s.FilterableAttributes.Merge(patch.FilterableAttributes),
		SortableAttributes:   s.SortableAttributes.Merge(patch.SortableAttributes),
		RankingRules:         s.RankingRules.Merge(patch.RankingRules),
		StopWords:            s.StopWords.Merge(patch.StopWords),
		NonSeparatorTokens:   s.NonSeparatorTokens.Merge(patch.NonSeparatorTokens),
		SeparatorTokens:      s.SeparatorTokens.Merge(patch.SeparatorTokens),
		Dictionary:           s.Dictionary.Merge(patch.Dictionary),
		Synonyms:             s.Synonyms.Merge(patch.Synonyms),
		DistinctAttribute:    s.DistinctAttribute.Merge(patch.DistinctAttribute),
		ProximityPrecision:   s.ProximityPrecision.Merge(patch.ProximityPrecision),
		TypoTolerance:        s.TypoTolerance.Merge(patch.TypoTolerance),
		Faceting:             s.Faceting.Merge(patch.Faceting),
		Pagination:           s.Pagination.Merge(patch.Pagination),
		Embedders:            s.Embedders.Merge(patch.Embedders),
		LocalizedAttributes:  s.LocalizedAttributes.Merge(patch.LocalizedAttributes),
		SearchCutoffMs:       s.SearchCutoffMs.Merge(patch.SearchCutoffMs),
	}
}

// IsEmpty reports whether every field is NotSet.
func (s Settings[T]) IsEmpty() bool {
	return s.DisplayedAttributes.IsNotSet() && s.SearchableAttributes.IsNotSet() &&
		s.FilterableAttributes.IsNotSet() && s.SortableAttributes.IsNotSet() &&
		s.RankingRules.IsNotSet() && s.StopWords.IsNotSet() &&
		s.NonSeparatorTokens.IsNotSet() && s.SeparatorTokens.IsNotSet() &&
		s.Dictionary.IsNotSet() && s.Synonyms.IsNotSet() &&
		s.DistinctAttribute.IsNotSet() && s.ProximityPrecision.IsNotSet() &&
		s.TypoTolerance.IsNotSet() && s.Faceting.IsNotSet() && s.Pagination.IsNotSet() &&
		s.Embedders.IsNotSet() && s.LocalizedAttributes.IsNotSet() && s.SearchCutoffMs.IsNotSet()
}

// Apply resolves patch against the current index settings: NotSet inherits, Reset
// restores Defaults, Set overrides.
func Apply(current, patch Settings[Checked]) Settings[Checked] {
	merged := current.Merge(patch)
	def := Defaults()
	out := Settings[Checked]{
		DisplayedAttributes:  resolve(merged.DisplayedAttributes, def.DisplayedAttributes),
		SearchableAttributes: resolve(merged.SearchableAttributes, def.SearchableAttributes),
		FilterableAttributes: resolve(merged.FilterableAttributes, def.FilterableAttributes),
		SortableAttributes:   resolve(merged.SortableAttributes, def.SortableAttributes),
		RankingRules:         resolve(merged.RankingRules, def.RankingRules),
		StopWords:            resolve(merged.StopWords, def.StopWords),
		NonSeparatorTokens:   resolve(merged.NonSeparatorTokens, def.NonSeparatorTokens),
		SeparatorTokens:      resolve(merged.SeparatorTokens, def.SeparatorTokens),
		Dictionary:           resolve(merged.Dictionary, def.Dictionary),
		Synonyms:             resolve(merged.Synonyms, def.Synonyms),
		DistinctAttribute:    resolve(merged.DistinctAttribute, def.DistinctAttribute),
		ProximityPrecision:   resolve(merged.ProximityPrecision, def.ProximityPrecision),
		TypoTolerance:        resolve(merged.TypoTolerance, def.TypoTolerance),
		Faceting:             resolve(merged.Faceting, def.Faceting),
		Pagination:           resolve(merged.Pagination, def.Pagination),
		Embedders:            resolve(merged.Embedders, def.Embedders),
		LocalizedAttributes:  resolve(merged.LocalizedAttributes, def.LocalizedAttributes),
		SearchCutoffMs:       resolve(merged.SearchCutoffMs, def.SearchCutoffMs),
	}
	out.TypoTolerance = resolveTypo(out.TypoTolerance, def.TypoTolerance)
	if v, ok := out.Faceting.Get(); ok {
		d, _ := def.Faceting.Get()
		out.Faceting = Set(Faceting{
			MaxValuesPerFacet: resolve(v.MaxValuesPerFacet, d.MaxValuesPerFacet),
			SortFacetValuesBy: resolve(v.SortFacetValuesBy, d.SortFacetValuesBy),
		})
	}
	if v, ok := out.Pagination.Get(); ok {
		d, _ := def.Pagination.Get()
		out.Pagination = Set(Pagination{MaxTotalHits: resolve(v.MaxTotalHits, d.MaxTotalHits)})
	}
	if v, ok := out.Embedders.Get(); ok {
		kept := make(map[string]Setting[Embedder], v.Len())
		for _, name := range v.Names() {
			if e, ok := v.Get(name).Get(); ok {
				kept[name] = Set(e.withoutResets())
			}
		}
		out.Embedders = Set(NewEmbedders(kept))
	}
	return out
}

// resolve replaces Reset and NotSet with the default.
func resolve[T any](s, def Setting[T]) Setting[T] {
	if s.IsSet() {
		return s
	}
	return def
}

func resolveTypo(s, def Setting[TypoTolerance]) Setting[TypoTolerance] {
	v, ok := s.Get()
	if !ok {
		return def
	}
	d, _ := def.Get()
	out := TypoTolerance{
		Enabled:             resolve(v.Enabled, d.Enabled),
		MinWordSizeForTypos: resolve(v.MinWordSizeForTypos, d.MinWordSizeForTypos),
		DisableOnWords:      resolve(v.DisableOnWords, d.DisableOnWords),
		DisableOnAttributes: resolve(v.DisableOnAttributes, d.DisableOnAttributes),
	}
	if m, ok := out.MinWordSizeForTypos.Get(); ok {
		dm, _ := d.MinWordSizeForTypos.Get()
		out.MinWordSizeForTypos = Set(MinWordSizeForTypos{
			OneTypo:  resolve(m.OneTypo, dm.OneTypo),
			TwoTypos: resolve(m.TwoTypos, dm.TwoTypos),
		})
	}
	return Set(out)
}

// convert re-tags settings. Kept private so only Validate can mint Settings[Checked].
func convert[To, From any](s Settings[From]) Settings[To] {
	return Settings[To]{
		DisplayedAttributes:  s.DisplayedAttributes,
		SearchableAttributes: s.SearchableAttributes,
		FilterableAttributes: s.FilterableAttributes,
		SortableAttributes:   s.SortableAttributes,
		RankingRules:         s.RankingRules,
		StopWords:            s.StopWords,
		NonSeparatorTokens:   s.NonSeparatorTokens,
		SeparatorTokens:      s.SeparatorTokens,
		Dictionary:           s.Dictionary,
		Synonyms:             s.Synonyms,
		DistinctAttribute:    s.DistinctAttribute,
		ProximityPrecision:   s.ProximityPrecision,
		TypoTolerance:        s.TypoTolerance,
		Faceting:             s.Faceting,
		Pagination:           s.Pagination,
		Embedders:            s.Embedders,
		LocalizedAttributes:  s.LocalizedAttributes,
		SearchCutoffMs:       s.SearchCutoffMs,
	}
}

// Unvalidated re-tags checked settings, e.g. to embed them in a dump payload that is
// validated again on import.
func Unvalidated(s Settings[Checked]) Settings[Unchecked] {
	return convert[Unchecked](s)
}
