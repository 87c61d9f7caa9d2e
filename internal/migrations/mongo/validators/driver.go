package validators

import "go.mongodb.org/mongo-driver/bson"

var DriverValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"name",
			"email",
			"city",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"phone": bson.M{
				"bsonType": "string",
			},

			"email": bson.M{
				"bsonType": "string",
			},

			"city": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 50,
			},

			"price_per_day": bson.M{
				"bsonType": []string{"double", "int", "long"},
				"minimum":  0,
			},

			"price_per_month": bson.M{
				"bsonType": []string{"double", "int", "long"},
				"minimum":  0,
			},

			"experience_years": bson.M{
				"bsonType": "int",
				"minimum":  0,
				"maximum":  80,
			},

			"languages": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"bio": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},

			"availability": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"date", "status"},
					"properties": bson.M{
						"date": bson.M{
							"bsonType": "string",
							"pattern":  `^\d{4}-\d{2}-\d{2}$`,
						},
						"status": bson.M{
							"bsonType": "string",
							"enum":     []string{"unavailable", "booked"},
						},
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var DriverLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "expires_at", "created_at"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},
			"expires_at": bson.M{
				"bsonType": "date",
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
