package state

import "strings"

// Field identifies a state field addressable from a rule condition.
type Field uint8

const (
	FieldInvalid Field = iota
	FieldTotalMemory
	FieldCryptoAlgorithm
	FieldDependencyCount
	FieldExecutionTimeVariance
	FieldStackUsage
	FieldNetworkConnections
	FieldUptime
	FieldContext
)

// Kind describes how a field compares against literals.
type Kind uint8

const (
	KindNumber Kind = iota // unsigned integer, all operators
	KindEnum               // closed set of names, equality only
	KindString             // context value, equality or numeric ordering
)

// ContextPrefix introduces a checkpoint context key in a field name.
const ContextPrefix = "context."

var fieldNames = map[string]Field{
	"total_memory":            FieldTotalMemory,
	"memory_allocated":        FieldTotalMemory,
	"crypto_algorithm":        FieldCryptoAlgorithm,
	"crypto_algo":             FieldCryptoAlgorithm,
	"dependency_count":        FieldDependencyCount,
	"execution_time_variance": FieldExecutionTimeVariance,
	"execution_time":          FieldExecutionTimeVariance,
	"stack_usage":             FieldStackUsage,
	"network_connections":     FieldNetworkConnections,
	"uptime":                  FieldUptime,
}

var canonicalNames = [...]string{
	FieldInvalid:               "",
	FieldTotalMemory:           "total_memory",
	FieldCryptoAlgorithm:       "crypto_algorithm",
	FieldDependencyCount:       "dependency_count",
	FieldExecutionTimeVariance: "execution_time_variance",
	FieldStackUsage:            "stack_usage",
	FieldNetworkConnections:    "network_connections",
	FieldUptime:                "uptime",
	FieldContext:               "context",
}

// Lookup resolves a condition identifier. For context.<key> identifiers it
// returns FieldContext and the key.
func Lookup(name string) (f Field, key string, ok bool) {
	if strings.HasPrefix(name, ContextPrefix) {
		key = name[len(ContextPrefix):]
		if key == "" || len(key) > MaxContextKeyLen {
			return FieldInvalid, "", false
		}
		return FieldContext, key, true
	}
	f, ok = fieldNames[name]
	return f, "", ok
}

// String returns the canonical field name.
func (f Field) String() string {
	if int(f) < len(canonicalNames) {
		return canonicalNames[f]
	}
	return ""
}

// Kind returns the comparison kind of the field.
func (f Field) Kind() Kind {
	switch f {
	case FieldCryptoAlgorithm:
		return KindEnum
	case FieldContext:
		return KindString
	default:
		return KindNumber
	}
}

// EnumValue maps an enumerated literal to its numeric tag for f.
func (f Field) EnumValue(literal string) (uint64, bool) {
	if f != FieldCryptoAlgorithm {
		return 0, false
	}
	alg, ok := ParseCryptoAlgorithm(literal)
	return uint64(alg), ok
}

// Names returns the identifiers accepted by Lookup, excluding context keys.
func Names() []string {
	names := make([]string, 0, len(fieldNames))
	for _, f := range canonicalNames[FieldTotalMemory:FieldContext] {
		names = append(names, f)
	}
	return names
}
