package validators

import "go.mongodb.org/mongo-driver/bson"

var ConversationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"participants",
			"participants_key",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"participants": bson.M{
				"bsonType": "array",
				"minItems": 2,
				"maxItems": 2,
				"items": bson.M{
					"bsonType":  "string",
					"minLength": 1,
					"maxLength": 100,
				},
			},

			"participants_key": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 201,
			},

			"last_message": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"latest_message_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var MessageValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"conversation_id",
			"sender_id",
			"recipient_id",
			"body",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"conversation_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"sender_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"recipient_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"body": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 5000,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
