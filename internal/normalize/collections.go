package normalize

import (
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
)

// Nested arrays are normalized element by element. An element that cannot be
// coerced is skipped; losing one entry is preferred over losing the user.

// elements returns the array stored under key, or nil for any other kind.
func elements(f fields, key string) bson.A {
	v, k := f.get(key)
	if k != KindArray {
		return nil
	}
	return v.(bson.A)
}

// eachDoc calls fn for every sub-document of the array stored under key.
func eachDoc(f fields, key string, fn func(fields)) {
	for _, el := range elements(f, key) {
		if doc, ok := el.(bson.D); ok {
			fn(fieldsOf(doc))
		}
	}
}

func completedChallenges(f fields) []domain.CompletedChallenge {
	out := []domain.CompletedChallenge{}
	eachDoc(f, "completedChallenges", func(c fields) {
		id, ok := stringField(c, "id")
		if !ok {
			return
		}
		v, _ := c.get("completedDate")
		date, ok := Millis(v)
		if !ok {
			return
		}
		out = append(out, domain.CompletedChallenge{
			ChallengeType:      challengeType(c),
			CompletedDate:      date,
			Files:              files(c),
			GithubLink:         optionalString(c, "githubLink"),
			ID:                 id,
			IsManuallyApproved: optionalBool(c, "isManuallyApproved"),
			Solution:           optionalString(c, "solution"),
		})
	})
	return out
}

func completedExams(f fields) []domain.CompletedExam {
	out := []domain.CompletedExam{}
	eachDoc(f, "completedExams", func(c fields) {
		id, ok := stringField(c, "id")
		if !ok {
			return
		}
		v, _ := c.get("completedDate")
		date, ok := Millis(v)
		if !ok {
			return
		}
		ct, ok := int32Field(c, "challengeType")
		if !ok {
			return
		}
		results, ok := examResults(c)
		if !ok {
			return
		}
		out = append(out, domain.CompletedExam{
			ChallengeType: ct,
			CompletedDate: date,
			ExamResults:   results,
			ID:            id,
		})
	})
	return out
}

func examResults(c fields) (domain.ExamResults, bool) {
	v, k := c.get("examResults")
	if k != KindDocument {
		return domain.ExamResults{}, false
	}
	r := fieldsOf(v.(bson.D))
	var res domain.ExamResults
	var ok [6]bool
	res.ExamTimeInSeconds, ok[0] = int32Field(r, "examTimeInSeconds")
	res.NumberOfCorrectAnswers, ok[1] = int32Field(r, "numberOfCorrectAnswers")
	res.NumberOfQuestionsInExam, ok[2] = int32Field(r, "numberOfQuestionsInExam")
	res.Passed, ok[3] = boolField(r, "passed")
	res.PassingPercent, ok[4] = floatField(r, "passingPercent")
	res.PercentCorrect, ok[5] = floatField(r, "percentCorrect")
	for _, b := range ok {
		if !b {
			return domain.ExamResults{}, false
		}
	}
	return res, true
}

func partiallyCompletedChallenges(f fields) []domain.PartiallyCompletedChallenge {
	out := []domain.PartiallyCompletedChallenge{}
	eachDoc(f, "partiallyCompletedChallenges", func(c fields) {
		id, ok := stringField(c, "id")
		if !ok {
			return
		}
		v, _ := c.get("completedDate")
		date, ok := Millis(v)
		if !ok {
			return
		}
		out = append(out, domain.PartiallyCompletedChallenge{CompletedDate: date, ID: id})
	})
	return out
}

func savedChallenges(f fields) []domain.SavedChallenge {
	out := []domain.SavedChallenge{}
	eachDoc(f, "savedChallenges", func(c fields) {
		id, ok := stringField(c, "id")
		if !ok {
			return
		}
		v, _ := c.get("lastSavedDate")
		date, ok := Millis(v)
		if !ok {
			return
		}
		ct, ok := int32Field(c, "challengeType")
		if !ok {
			return
		}
		out = append(out, domain.SavedChallenge{
			ChallengeType: ct,
			Files:         files(c),
			ID:            id,
			LastSavedDate: date,
		})
	})
	return out
}

func portfolio(f fields) []domain.Portfolio {
	out := []domain.Portfolio{}
	eachDoc(f, "portfolio", func(c fields) {
		out = append(out, domain.Portfolio{
			Description: stringOrEmpty(c, "description"),
			ID:          stringOrEmpty(c, "id"),
			Image:       stringOrEmpty(c, "image"),
			Title:       stringOrEmpty(c, "title"),
			URL:         stringOrEmpty(c, "url"),
		})
	})
	return out
}

// files keeps only elements carrying all five string fields.
func files(c fields) []domain.File {
	out := []domain.File{}
	eachDoc(c, "files", func(fl fields) {
		var file domain.File
		var ok [5]bool
		file.Contents, ok[0] = stringField(fl, "contents")
		file.Ext, ok[1] = stringField(fl, "ext")
		file.Key, ok[2] = stringField(fl, "key")
		file.Name, ok[3] = stringField(fl, "name")
		file.Path, ok[4] = stringField(fl, "path")
		for _, b := range ok {
			if !b {
				return
			}
		}
		out = append(out, file)
	})
	return out
}

// progressTimestamps accepts bare timestamps and {timestamp: ...} documents.
func progressTimestamps(f fields) []int64 {
	out := []int64{}
	for _, el := range elements(f, "progressTimestamps") {
		if doc, ok := el.(bson.D); ok {
			el, _ = fieldsOf(doc).get("timestamp")
		}
		if ms, ok := Millis(el); ok {
			out = append(out, ms)
		}
	}
	return out
}

// yearsTopContributor accepts numbers and digit strings such as "2019".
func yearsTopContributor(f fields) []int32 {
	out := []int32{}
	for _, el := range elements(f, "yearsTopContributor") {
		if s, ok := el.(string); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
			if err == nil && n >= 0 {
				out = append(out, int32(n))
			}
			continue
		}
		if n, ok := toInt32(el); ok && n >= 0 {
			out = append(out, n)
		}
	}
	return out
}

func donationEmails(f fields) []string {
	out := []string{}
	for _, el := range elements(f, "donationEmails") {
		if s, ok := el.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func profileUI(f fields) domain.ProfileUI {
	ui := domain.DefaultProfileUI()
	v, k := f.get("profileUI")
	if k != KindDocument {
		return ui
	}
	p := fieldsOf(v.(bson.D))
	set := func(dst *bool, key string) {
		if b, ok := boolField(p, key); ok {
			*dst = b
		}
	}
	set(&ui.IsLocked, "isLocked")
	set(&ui.ShowAbout, "showAbout")
	set(&ui.ShowCerts, "showCerts")
	set(&ui.ShowDonation, "showDonation")
	set(&ui.ShowHeatMap, "showHeatMap")
	set(&ui.ShowLocation, "showLocation")
	set(&ui.ShowName, "showName")
	set(&ui.ShowPoints, "showPoints")
	set(&ui.ShowPortfolio, "showPortfolio")
	set(&ui.ShowTimeLine, "showTimeLine")
	return ui
}

// challengeType is absent unless the element holds a number.
func challengeType(c fields) domain.Nullable[int32] {
	if n, ok := int32Field(c, "challengeType"); ok {
		return domain.Some(n)
	}
	return domain.Absent[int32]()
}

func optionalString(c fields, key string) domain.Nullable[string] {
	if s, ok := stringField(c, key); ok {
		return domain.Some(s)
	}
	return domain.Null[string]()
}

func optionalBool(c fields, key string) domain.Nullable[bool] {
	if b, ok := boolField(c, key); ok {
		return domain.Some(b)
	}
	return domain.Null[bool]()
}

func stringField(c fields, key string) (string, bool) {
	v, k := c.get(key)
	if k != KindString {
		return "", false
	}
	return v.(string), true
}

func stringOrEmpty(c fields, key string) string {
	s, _ := stringField(c, key)
	return s
}

func boolField(c fields, key string) (bool, bool) {
	v, k := c.get(key)
	if k != KindBool {
		return false, false
	}
	return v.(bool), true
}

func floatField(c fields, key string) (float64, bool) {
	v, _ := c.get(key)
	switch n := v.(type) {
	case float64:
		return n, true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func int32Field(c fields, key string) (int32, bool) {
	v, _ := c.get(key)
	return toInt32(v)
}

// toInt32 accepts int32, int64 and double values that fit in an int32.
func toInt32(v any) (int32, bool) {
	var n float64
	switch x := v.(type) {
	case int32:
		return x, true
	case int64:
		n = float64(x)
	case int:
		n = float64(x)
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		n = math.Trunc(x)
	default:
		return 0, false
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}
