package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CryptoAlgorithm tags the key-exchange or signature scheme active on the device.
type CryptoAlgorithm uint8

const (
	CryptoNone       CryptoAlgorithm = 0
	CryptoKyber512   CryptoAlgorithm = 1
	CryptoDilithium2 CryptoAlgorithm = 2
	CryptoOther      CryptoAlgorithm = 3
)

var cryptoNames = [...]string{
	CryptoNone:       "none",
	CryptoKyber512:   "kyber512",
	CryptoDilithium2: "dilithium2",
	CryptoOther:      "other",
}

// String returns the wire name of the algorithm.
func (a CryptoAlgorithm) String() string {
	if int(a) < len(cryptoNames) {
		return cryptoNames[a]
	}
	return fmt.Sprintf("crypto(%d)", uint8(a))
}

// QuantumSafe reports whether the algorithm is one of the deployed post-quantum schemes.
func (a CryptoAlgorithm) QuantumSafe() bool {
	return a == CryptoKyber512 || a == CryptoDilithium2
}

// ParseCryptoAlgorithm maps a wire name to its tag. Matching is case-insensitive.
func ParseCryptoAlgorithm(s string) (CryptoAlgorithm, bool) {
	for i, name := range cryptoNames {
		if strings.EqualFold(s, name) {
			return CryptoAlgorithm(i), true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (a CryptoAlgorithm) MarshalText() ([]byte, error) {
	if int(a) >= len(cryptoNames) {
		return nil, fmt.Errorf("unknown crypto algorithm %d", uint8(a))
	}
	return []byte(cryptoNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *CryptoAlgorithm) UnmarshalText(text []byte) error {
	alg, ok := ParseCryptoAlgorithm(string(text))
	if !ok {
		return fmt.Errorf("unknown crypto algorithm %q", text)
	}
	*a = alg
	return nil
}

// SystemState is a point-in-time snapshot of device state handed to the engine
// at a checkpoint. The engine reads it for the duration of one call and never
// retains or mutates it.
type SystemState struct {
	TotalMemory           uint64          `json:"total_memory"`
	CryptoAlgorithm       CryptoAlgorithm `json:"crypto_algorithm"`
	DependencyCount       uint32          `json:"dependency_count"`
	ExecutionTimeVariance uint64          `json:"execution_time_variance"`
	StackUsage            uint64          `json:"stack_usage"`
	NetworkConnections    uint32          `json:"network_connections"`
	Uptime                uint64          `json:"uptime"`
	Context               Context         `json:"context,omitzero"`
}

// UnmarshalJSON accepts the field aliases used by older producers
// (memory_allocated, crypto_algo, execution_time).
func (s *SystemState) UnmarshalJSON(data []byte) error {
	type plain SystemState
	aux := struct {
		*plain
		MemoryAllocated *uint64          `json:"memory_allocated"`
		CryptoAlgo      *CryptoAlgorithm `json:"crypto_algo"`
		ExecutionTime   *uint64          `json:"execution_time"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.MemoryAllocated != nil && s.TotalMemory == 0 {
		s.TotalMemory = *aux.MemoryAllocated
	}
	if aux.CryptoAlgo != nil && s.CryptoAlgorithm == CryptoNone {
		s.CryptoAlgorithm = *aux.CryptoAlgo
	}
	if aux.ExecutionTime != nil && s.ExecutionTimeVariance == 0 {
		s.ExecutionTimeVariance = *aux.ExecutionTime
	}
	return nil
}

// Number returns the numeric value of a scalar field. Enumerated fields
// return their tag. Context and invalid fields return 0, false.
func (s *SystemState) Number(f Field) (uint64, bool) {
	switch f {
	case FieldTotalMemory:
		return s.TotalMemory, true
	case FieldCryptoAlgorithm:
		return uint64(s.CryptoAlgorithm), true
	case FieldDependencyCount:
		return uint64(s.DependencyCount), true
	case FieldExecutionTimeVariance:
		return s.ExecutionTimeVariance, true
	case FieldStackUsage:
		return s.StackUsage, true
	case FieldNetworkConnections:
		return uint64(s.NetworkConnections), true
	case FieldUptime:
		return s.Uptime, true
	default:
		return 0, false
	}
}

// Validate checks that enumerated fields hold known tags.
func (s *SystemState) Validate() error {
	if int(s.CryptoAlgorithm) >= len(cryptoNames) {
		return fmt.Errorf("crypto_algorithm: unknown tag %d", uint8(s.CryptoAlgorithm))
	}
	return nil
}
