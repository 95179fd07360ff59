package resolver

import (
	"strings"

	"github.com/siherrmann/pseudonymizer/model"
)

// honorificGenders maps known title prefixes (lowercase, without
// trailing period) to the gender they imply. French and English forms
// are covered; detection of other languages is out of scope.
var honorificGenders = map[string]model.Gender{
	"m":            model.GenderMale,
	"monsieur":     model.GenderMale,
	"mr":           model.GenderMale,
	"mme":          model.GenderFemale,
	"madame":       model.GenderFemale,
	"mlle":         model.GenderFemale,
	"mademoiselle": model.GenderFemale,
	"mrs":          model.GenderFemale,
	"ms":           model.GenderFemale,
	"miss":         model.GenderFemale,
	"dr":           model.GenderUnknown,
	"docteur":      model.GenderUnknown,
	"pr":           model.GenderUnknown,
	"prof":         model.GenderUnknown,
	"professeur":   model.GenderUnknown,
	"me":           model.GenderUnknown,
	"maitre":       model.GenderUnknown,
	"maître":       model.GenderUnknown,
}

// IsTitle reports whether a token is a known honorific prefix.
func IsTitle(token string) bool {
	_, ok := honorificGenders[strings.ToLower(strings.TrimSuffix(token, "."))]
	return ok
}

// TitleGender returns the gender implied by an honorific, or unknown.
func TitleGender(title string) model.Gender {
	gender, ok := honorificGenders[strings.ToLower(strings.TrimSuffix(title, "."))]
	if !ok {
		return model.GenderUnknown
	}
	return gender
}

// StripTitle splits a raw mention text into its leading honorific (if
// any) and the remaining name. Offsets are not touched here; callers
// keep replacing the full original span including the title.
func StripTitle(raw string) (title string, name string) {
	trimmed := strings.TrimSpace(raw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", ""
	}
	if IsTitle(fields[0]) {
		return fields[0], strings.Join(fields[1:], " ")
	}
	return "", trimmed
}

// NormalizeName collapses whitespace in a name. Hyphen-joined
// compound names ("Jean-Pierre") stay single atomic tokens because
// only whitespace separates tokens.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// SplitPersonName decomposes a normalized person name into first and
// last name. The first token is the first name; everything after it
// is the last name, so particles ("de la Tour") stay together. A
// single token does not decompose.
func SplitPersonName(name string) (firstName string, lastName string, ok bool) {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}
