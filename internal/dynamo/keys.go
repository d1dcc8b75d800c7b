// Package dynamo provides shared DynamoDB constants and utilities.
package dynamo

const (
	// Primary key attributes.
	AttrPK = "PK"
	AttrSK = "SK"

	// Discriminator attribute present on every item.
	AttrEntityType = "entityType"

	// Key prefixes.
	PrefixExam = "EXAM#"

	// GSI key attributes.
	AttrGSI1PK = "GSI1PK"
	AttrGSI1SK = "GSI1SK"
	AttrGSI2PK = "GSI2PK"
	AttrGSI2SK = "GSI2SK"

	// MaxTransactItems is the DynamoDB limit on actions in one TransactWriteItems call.
	MaxTransactItems = 100
)

// ExamPK returns the partition key shared by an exam and all of its questions.
func ExamPK(examID string) string {
	return PrefixExam + examID
}

// Key identifies a single item by its primary key.
type Key struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}
