package entity

// Re-export common types from the common package for backward compatibility.

import (
	"facechanger/internal/entity/common"
)

// Type aliases for common types
type StringArray = common.StringArray
type IntArray = common.IntArray
type JSONMap = common.JSONMap
type Meta = common.Meta
