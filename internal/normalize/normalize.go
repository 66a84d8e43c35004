// Package normalize maps legacy user documents onto the normalized schema.
//
// User is a pure function apart from the lastUpdatedAtInMS stamp, which is
// taken from the now argument. It never panics: every record that cannot be
// mapped yields a ClassifiedError.
package normalize

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
)

// User normalizes one legacy user document.
//
// The _id is checked first; without an ObjectID nothing else is read.
// Top-level type mismatches fail the whole record with a ShapeError, while
// elements of nested arrays that cannot be coerced are dropped and the
// record still succeeds.
func User(raw bson.D, now time.Time) (*domain.User, error) {
	f := fieldsOf(raw)

	idVal, _ := f.get("_id")
	id, ok := idVal.(bson.ObjectID)
	if !ok {
		return nil, &IdentityError{Raw: raw}
	}

	email, err := normalizeEmail(id, f, raw)
	if err != nil {
		return nil, err
	}

	d := &userDecoder{id: id, f: f}
	u := &domain.User{
		ID:                           id,
		About:                        d.str("about"),
		AcceptedPrivacyTerms:         d.boolean("acceptedPrivacyTerms"),
		CompletedChallenges:          completedChallenges(f),
		CompletedExams:               completedExams(f),
		CurrentChallengeID:           d.nullableString("currentChallengeId"),
		DonationEmails:               donationEmails(f),
		Email:                        email,
		EmailAuthLinkTTL:             d.nullableDate("emailAuthLinkTTL"),
		EmailVerified:                d.boolean("emailVerified"),
		EmailVerifyTTL:               d.nullableDate("emailVerifyTTL"),
		ExternalID:                   d.nullableString("externalId"),
		GithubProfile:                d.str("githubProfile"),
		Is2018DataVisCert:            d.boolean("is2018DataVisCert"),
		Is2018FullStackCert:          d.boolean("is2018FullStackCert"),
		IsApisMicroservicesCert:      d.boolean("isApisMicroservicesCert"),
		IsBackEndCert:                d.boolean("isBackEndCert"),
		IsBanned:                     d.boolean("isBanned"),
		IsCheater:                    d.boolean("isCheater"),
		IsClassroomAccount:           d.boolean("isClassroomAccount"),
		IsCollegeAlgebraPyCertV8:     d.boolean("isCollegeAlgebraPyCertV8"),
		IsDataAnalysisPyCertV7:       d.boolean("isDataAnalysisPyCertV7"),
		IsDataVisCert:                d.boolean("isDataVisCert"),
		IsDonating:                   d.boolean("isDonating"),
		IsFoundationalCSharpCertV8:   d.boolean("isFoundationalCSharpCertV8"),
		IsFrontEndCert:               d.boolean("isFrontEndCert"),
		IsFrontEndLibsCert:           d.boolean("isFrontEndLibsCert"),
		IsFullStackCert:              d.boolean("isFullStackCert"),
		IsHonest:                     d.boolean("isHonest"),
		IsInfosecCertV7:              d.boolean("isInfosecCertV7"),
		IsInfosecQACert:              d.boolean("isInfosecQACert"),
		IsJsAlgoDataStructCert:       d.boolean("isJsAlgoDataStructCert"),
		IsJsAlgoDataStructCertV8:     d.boolean("isJsAlgoDataStructCertV8"),
		IsMachineLearningPyCertV7:    d.boolean("isMachineLearningPyCertV7"),
		IsQACertV7:                   d.boolean("isQaCertV7"),
		IsRelationalDatabaseCertV8:   d.boolean("isRelationalDatabaseCertV8"),
		IsRespWebDesignCert:          d.boolean("isRespWebDesignCert"),
		IsSciCompPyCertV7:            d.boolean("isSciCompPyCertV7"),
		KeyboardShortcuts:            d.boolean("keyboardShortcuts"),
		Linkedin:                     d.str("linkedin"),
		Location:                     d.str("location"),
		Name:                         d.str("name"),
		NeedsModeration:              d.boolean("needsModeration"),
		NewEmail:                     d.nullableString("newEmail"),
		PartiallyCompletedChallenges: partiallyCompletedChallenges(f),
		Picture:                      d.str("picture"),
		Portfolio:                    portfolio(f),
		ProfileUI:                    profileUI(f),
		ProgressTimestamps:           progressTimestamps(f),
		Rand:                         d.float("rand"),
		SavedChallenges:              savedChallenges(f),
		SendQuincyEmail:              d.boolean("sendQuincyEmail"),
		Theme:                        d.str("theme"),
		Twitter:                      d.str("twitter"),
		UnsubscribeID:                d.str("unsubscribeId"),
		Username:                     d.str("username"),
		UsernameDisplay:              d.str("usernameDisplay"),
		Website:                      d.str("website"),
		YearsTopContributor:          yearsTopContributor(f),
	}
	if d.err != nil {
		return nil, d.err
	}

	u.LastUpdatedAtInMS = now.UnixMilli()
	return u, nil
}

// normalizeEmail enforces the destination's non-empty email invariant.
func normalizeEmail(id bson.ObjectID, f fields, raw bson.D) (string, error) {
	v, k := f.get("email")
	switch k {
	case KindMissing, KindNull:
		return "", &MissingFieldError{ID: id, Field: "email", Raw: raw}
	case KindString:
		email := strings.ToLower(strings.TrimSpace(v.(string)))
		if email == "" {
			return "", &MissingFieldError{ID: id, Field: "email", Raw: raw}
		}
		return email, nil
	default:
		return "", unexpected(id, "email", k)
	}
}

// userDecoder reads top-level scalar fields and keeps the first mismatch.
// After an error every accessor returns the zero value.
type userDecoder struct {
	id  bson.ObjectID
	f   fields
	err *ShapeError
}

func (d *userDecoder) fail(key string, k Kind) {
	if d.err == nil {
		d.err = unexpected(d.id, key, k)
	}
}

func (d *userDecoder) str(key string) string {
	v, k := d.f.get(key)
	switch k {
	case KindString:
		return v.(string)
	case KindMissing, KindNull:
		return ""
	}
	d.fail(key, k)
	return ""
}

func (d *userDecoder) boolean(key string) bool {
	v, k := d.f.get(key)
	switch k {
	case KindBool:
		return v.(bool)
	case KindMissing, KindNull:
		return false
	}
	d.fail(key, k)
	return false
}

func (d *userDecoder) float(key string) float64 {
	v, k := d.f.get(key)
	switch k {
	case KindDouble:
		return v.(float64)
	case KindInt32:
		return float64(v.(int32))
	case KindInt64:
		if n, ok := asInt64(v); ok {
			return float64(n)
		}
	case KindMissing, KindNull:
		return 0
	}
	d.fail(key, k)
	return 0
}

func (d *userDecoder) nullableString(key string) domain.Nullable[string] {
	v, k := d.f.get(key)
	switch k {
	case KindMissing:
		return domain.Absent[string]()
	case KindNull:
		return domain.Null[string]()
	case KindString:
		return domain.Some(v.(string))
	}
	d.fail(key, k)
	return domain.Absent[string]()
}

func (d *userDecoder) nullableDate(key string) domain.Nullable[bson.DateTime] {
	v, k := d.f.get(key)
	switch k {
	case KindMissing:
		return domain.Absent[bson.DateTime]()
	case KindNull:
		return domain.Null[bson.DateTime]()
	}
	if ms, ok := Millis(v); ok {
		return domain.Some(bson.DateTime(ms))
	}
	d.fail(key, k)
	return domain.Absent[bson.DateTime]()
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
