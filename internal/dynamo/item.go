package dynamo

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AttributeValues returns the key in the form expected by GetItem and DeleteItem.
func (k Key) AttributeValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: k.PK},
		AttrSK: &types.AttributeValueMemberS{Value: k.SK},
	}
}

// KeyOf extracts the primary key from a raw item. ok is false when either
// attribute is missing or not a string.
func KeyOf(item map[string]types.AttributeValue) (key Key, ok bool) {
	pk, ok := item[AttrPK].(*types.AttributeValueMemberS)
	if !ok {
		return Key{}, false
	}
	sk, ok := item[AttrSK].(*types.AttributeValueMemberS)
	if !ok {
		return Key{}, false
	}
	return Key{PK: pk.Value, SK: sk.Value}, true
}
