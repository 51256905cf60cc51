package entities

import "gorm.io/datatypes"

// Meta is free-form output metadata stored as jsonb. Numbers read back from the
// database decode as json.Number.
type Meta = datatypes.JSONMap
