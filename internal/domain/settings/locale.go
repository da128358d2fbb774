package settings

import "sort"

// Features is the set of tokenizer language features compiled into the engine.
type Features map[string]bool

// Tokenizer features that can be switched off at build time.
const (
	FeatureChinese   = "chinese"
	FeatureHebrew    = "hebrew"
	FeatureJapanese  = "japanese"
	FeatureThai      = "thai"
	FeatureGreek     = "greek"
	FeatureKhmer     = "khmer"
	FeatureVietnam   = "vietnamese"
	FeatureGerman    = "german"
	FeatureKorean    = "korean"
	FeatureSwedish   = "swedish-recomposition"
	FeatureLatinDiac = "latin-camelcase"
)

// NewFeatures builds a feature set from names.
func NewFeatures(names ...string) Features {
	f := make(Features, len(names))
	for _, n := range names {
		f[n] = true
	}
	return f
}

// AllFeatures returns a set with every known tokenizer feature enabled.
func AllFeatures() Features {
	return NewFeatures(FeatureChinese, FeatureHebrew, FeatureJapanese, FeatureThai, FeatureGreek,
		FeatureKhmer, FeatureVietnam, FeatureGerman, FeatureKorean, FeatureSwedish, FeatureLatinDiac)
}

// Enabled reports whether feature is compiled in.
func (f Features) Enabled(feature string) bool { return f[feature] }

// Names returns enabled features, sorted.
func (f Features) Names() []string {
	out := make([]string, 0, len(f))
	for n, on := range f {
		if on {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// locales maps ISO 639-3 codes to the tokenizer feature they need; "" means the
// locale is always available.
var locales = map[string]string{
	"eng": "", "fra": "", "spa": "", "ita": "", "por": "", "nld": "", "rus": "", "ukr": "",
	"pol": "", "ces": "", "tur": "", "ara": "", "hin": "", "ben": "", "fin": "", "dan": "",
	"nob": "", "ron": "", "hun": "", "ind": "", "cat": "", "lat": "", "epo": "", "pes": "",
	"deu": FeatureGerman,
	"cmn": FeatureChinese,
	"zho": FeatureChinese,
	"jpn": FeatureJapanese,
	"heb": FeatureHebrew,
	"tha": FeatureThai,
	"ell": FeatureGreek,
	"khm": FeatureKhmer,
	"vie": FeatureVietnam,
	"kor": FeatureKorean,
	"swe": FeatureSwedish,
}

// LocaleFeature returns the feature a locale needs and whether the locale is known.
func LocaleFeature(locale string) (string, bool) {
	f, ok := locales[locale]
	return f, ok
}
