package utils

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StringToObjectID converts a hex string to an ObjectID
func StringToObjectID(id string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(id)
}

// IsValidObjectID checks whether the string is a valid ObjectID hex
func IsValidObjectID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}
