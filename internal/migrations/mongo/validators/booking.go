package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"driver_id",
			"owner_id",
			"booking_type",
			"pickup_location",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"driver_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"booking_type": bson.M{
				"bsonType": "string",
				"enum":     []string{"daily", "monthly"},
			},

			"selected_dates": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
					"pattern":  `^\d{4}-\d{2}-\d{2}$`,
				},
			},

			"start_date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"end_date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"number_of_months": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  36,
			},

			"pickup_location": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 200,
			},

			"notes": bson.M{
				"bsonType":  "string",
				"maxLength": 1000,
			},

			"total_cost": bson.M{
				"bsonType": []string{"double", "int", "long"},
				"minimum":  0,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"accepted",
					"rejected",
					"cancelled",
					"completed",
				},
			},

			"review": bson.M{
				"bsonType": "object",
				"required": []string{"rating", "created_at"},
				"properties": bson.M{
					"rating": bson.M{
						"bsonType": "int",
						"minimum":  1,
						"maximum":  5,
					},
					"comment": bson.M{
						"bsonType":  "string",
						"maxLength": 1000,
					},
					"created_at": bson.M{
						"bsonType": "date",
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
