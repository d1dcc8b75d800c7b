package exam

// Sort key values and prefixes.
const (
	SKMetadata     = "METADATA"
	PrefixQuestion = "QUESTION#"
)

// Prefixes used by the secondary index keys.
const (
	PrefixCategory   = "CATEGORY#"
	PrefixDifficulty = "DIFFICULTY#"
	PrefixActive     = "ACTIVE#"
)

// Entity type discriminator values.
const (
	EntityTypeExam     = "EXAM"
	EntityTypeQuestion = "QUESTION"
)

// Attribute names read outside the record structs.
const (
	AttrTotalQuestions = "totalQuestions"
	AttrIsActive       = "isActive"
	AttrTierAccess     = "tierAccess"
	AttrCreatedAt      = "createdAt"
)

// MaxQuestionNumber is the largest ordinal that fits the 4-digit sort key suffix.
const MaxQuestionNumber = 9999
