package domain

import "go.mongodb.org/mongo-driver/v2/bson"

// User is the normalized user document written to the destination collection.
// Every field has a default; only ID is mandatory.
type User struct {
	ID                           bson.ObjectID                 `bson:"_id"`
	About                        string                        `bson:"about"`
	AcceptedPrivacyTerms         bool                          `bson:"acceptedPrivacyTerms"`
	CompletedChallenges          []CompletedChallenge          `bson:"completedChallenges"`
	CompletedExams               []CompletedExam               `bson:"completedExams"`
	CurrentChallengeID           Nullable[string]              `bson:"currentChallengeId,omitempty"`
	DonationEmails               []string                      `bson:"donationEmails"`
	Email                        string                        `bson:"email"`
	EmailAuthLinkTTL             Nullable[bson.DateTime]       `bson:"emailAuthLinkTTL,omitempty"`
	EmailVerified                bool                          `bson:"emailVerified"`
	EmailVerifyTTL               Nullable[bson.DateTime]       `bson:"emailVerifyTTL,omitempty"`
	ExternalID                   Nullable[string]              `bson:"externalId,omitempty"`
	GithubProfile                string                        `bson:"githubProfile"`
	Is2018DataVisCert            bool                          `bson:"is2018DataVisCert"`
	Is2018FullStackCert          bool                          `bson:"is2018FullStackCert"`
	IsApisMicroservicesCert      bool                          `bson:"isApisMicroservicesCert"`
	IsBackEndCert                bool                          `bson:"isBackEndCert"`
	IsBanned                     bool                          `bson:"isBanned"`
	IsCheater                    bool                          `bson:"isCheater"`
	IsClassroomAccount           bool                          `bson:"isClassroomAccount"`
	IsCollegeAlgebraPyCertV8     bool                          `bson:"isCollegeAlgebraPyCertV8"`
	IsDataAnalysisPyCertV7       bool                          `bson:"isDataAnalysisPyCertV7"`
	IsDataVisCert                bool                          `bson:"isDataVisCert"`
	IsDonating                   bool                          `bson:"isDonating"`
	IsFoundationalCSharpCertV8   bool                          `bson:"isFoundationalCSharpCertV8"`
	IsFrontEndCert               bool                          `bson:"isFrontEndCert"`
	IsFrontEndLibsCert           bool                          `bson:"isFrontEndLibsCert"`
	IsFullStackCert              bool                          `bson:"isFullStackCert"`
	IsHonest                     bool                          `bson:"isHonest"`
	IsInfosecCertV7              bool                          `bson:"isInfosecCertV7"`
	IsInfosecQACert              bool                          `bson:"isInfosecQACert"`
	IsJsAlgoDataStructCert       bool                          `bson:"isJsAlgoDataStructCert"`
	IsJsAlgoDataStructCertV8     bool                          `bson:"isJsAlgoDataStructCertV8"`
	IsMachineLearningPyCertV7    bool                          `bson:"isMachineLearningPyCertV7"`
	IsQACertV7                   bool                          `bson:"isQaCertV7"`
	IsRelationalDatabaseCertV8   bool                          `bson:"isRelationalDatabaseCertV8"`
	IsRespWebDesignCert          bool                          `bson:"isRespWebDesignCert"`
	IsSciCompPyCertV7            bool                          `bson:"isSciCompPyCertV7"`
	KeyboardShortcuts            bool                          `bson:"keyboardShortcuts"`
	LastUpdatedAtInMS            int64                         `bson:"lastUpdatedAtInMS"`
	Linkedin                     string                        `bson:"linkedin"`
	Location                     string                        `bson:"location"`
	Name                         string                        `bson:"name"`
	NeedsModeration              bool                          `bson:"needsModeration"`
	NewEmail                     Nullable[string]              `bson:"newEmail,omitempty"`
	PartiallyCompletedChallenges []PartiallyCompletedChallenge `bson:"partiallyCompletedChallenges"`
	Picture                      string                        `bson:"picture"`
	Portfolio                    []Portfolio                   `bson:"portfolio"`
	ProfileUI                    ProfileUI                     `bson:"profileUI"`
	ProgressTimestamps           []int64                       `bson:"progressTimestamps"`
	Rand                         float64                       `bson:"rand"`
	SavedChallenges              []SavedChallenge              `bson:"savedChallenges"`
	SendQuincyEmail              bool                          `bson:"sendQuincyEmail"`
	Theme                        string                        `bson:"theme"`
	Twitter                      string                        `bson:"twitter"`
	UnsubscribeID                string                        `bson:"unsubscribeId"`
	Username                     string                        `bson:"username"`
	UsernameDisplay              string                        `bson:"usernameDisplay"`
	Website                      string                        `bson:"website"`
	YearsTopContributor          []int32                       `bson:"yearsTopContributor"`
}

type CompletedChallenge struct {
	ChallengeType      Nullable[int32]  `bson:"challengeType,omitempty"`
	CompletedDate      int64            `bson:"completedDate"`
	Files              []File           `bson:"files"`
	GithubLink         Nullable[string] `bson:"githubLink,omitempty"`
	ID                 string           `bson:"id"`
	IsManuallyApproved Nullable[bool]   `bson:"isManuallyApproved,omitempty"`
	Solution           Nullable[string] `bson:"solution,omitempty"`
}

type CompletedExam struct {
	ChallengeType int32       `bson:"challengeType"`
	CompletedDate int64       `bson:"completedDate"`
	ExamResults   ExamResults `bson:"examResults"`
	ID            string      `bson:"id"`
}

type ExamResults struct {
	ExamTimeInSeconds       int32   `bson:"examTimeInSeconds"`
	NumberOfCorrectAnswers  int32   `bson:"numberOfCorrectAnswers"`
	NumberOfQuestionsInExam int32   `bson:"numberOfQuestionsInExam"`
	Passed                  bool    `bson:"passed"`
	PassingPercent          float64 `bson:"passingPercent"`
	PercentCorrect          float64 `bson:"percentCorrect"`
}

type PartiallyCompletedChallenge struct {
	CompletedDate int64  `bson:"completedDate"`
	ID            string `bson:"id"`
}

type Portfolio struct {
	Description string `bson:"description"`
	ID          string `bson:"id"`
	Image       string `bson:"image"`
	Title       string `bson:"title"`
	URL         string `bson:"url"`
}

// ProfileUI holds the profile privacy switches. New profiles are locked.
type ProfileUI struct {
	IsLocked      bool `bson:"isLocked"`
	ShowAbout     bool `bson:"showAbout"`
	ShowCerts     bool `bson:"showCerts"`
	ShowDonation  bool `bson:"showDonation"`
	ShowHeatMap   bool `bson:"showHeatMap"`
	ShowLocation  bool `bson:"showLocation"`
	ShowName      bool `bson:"showName"`
	ShowPoints    bool `bson:"showPoints"`
	ShowPortfolio bool `bson:"showPortfolio"`
	ShowTimeLine  bool `bson:"showTimeLine"`
}

// DefaultProfileUI returns the settings applied when a legacy record has none.
func DefaultProfileUI() ProfileUI {
	return ProfileUI{IsLocked: true}
}

type SavedChallenge struct {
	ChallengeType int32  `bson:"challengeType"`
	Files         []File `bson:"files"`
	ID            string `bson:"id"`
	LastSavedDate int64  `bson:"lastSavedDate"`
}

type File struct {
	Contents string `bson:"contents"`
	Ext      string `bson:"ext"`
	Key      string `bson:"key"`
	Name     string `bson:"name"`
	Path     string `bson:"path"`
}
