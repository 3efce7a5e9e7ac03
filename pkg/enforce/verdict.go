package enforce

import (
	"fmt"
	"syscall"

	"nanogov/governor/pkg/policy"
)

// Verdict is the outcome of an enforcement call. The numeric values are the
// wire codes returned to callers and used as the CLI exit status.
type Verdict uint8

const (
	VerdictAllow      Verdict = 0
	VerdictDeny       Verdict = 1
	VerdictQuarantine Verdict = 2
	VerdictErase      Verdict = 3
)

var verdictNames = [...]string{"allow", "deny", "quarantine", "erase"}

// String returns the lower-case verdict name.
func (v Verdict) String() string {
	if int(v) < len(verdictNames) {
		return verdictNames[v]
	}
	return fmt.Sprintf("verdict(%d)", uint8(v))
}

// Code returns the numeric verdict code.
func (v Verdict) Code() int {
	return int(v)
}

// Errno maps the verdict to the errno a security-module hook returns:
// zero for Allow, EACCES for Quarantine, EPERM otherwise.
func (v Verdict) Errno() syscall.Errno {
	switch v {
	case VerdictAllow:
		return 0
	case VerdictQuarantine:
		return syscall.EACCES
	default:
		return syscall.EPERM
	}
}

// ParseVerdict parses a verdict name.
func ParseVerdict(s string) (Verdict, bool) {
	for i, name := range verdictNames {
		if name == s {
			return Verdict(i), true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	if int(v) >= len(verdictNames) {
		return nil, fmt.Errorf("invalid verdict %d", uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, ok := ParseVerdict(string(text))
	if !ok {
		return fmt.Errorf("unknown verdict %q", text)
	}
	*v = parsed
	return nil
}

// Effect is the side effect a caller must carry out with the verdict.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectQuarantine
	EffectEraseAndHalt
)

var effectNames = [...]string{"none", "quarantine", "erase_and_halt"}

// String returns the effect name.
func (e Effect) String() string {
	if int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("effect(%d)", uint8(e))
}

// MarshalText implements encoding.TextMarshaler.
func (e Effect) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Resolve maps a rule action to its verdict and effect and reports whether
// the action ends the scan. Allow and log are recorded and scanning
// continues.
func Resolve(a policy.Action) (Verdict, Effect, bool) {
	switch a {
	case policy.ActionDeny:
		return VerdictDeny, EffectNone, true
	case policy.ActionQuarantine:
		return VerdictQuarantine, EffectQuarantine, true
	case policy.ActionSelfDestruct:
		return VerdictErase, EffectEraseAndHalt, true
	case policy.ActionAllow, policy.ActionLog:
		return VerdictAllow, EffectNone, false
	default:
		// An undefined action can only come from a corrupted snapshot.
		return VerdictDeny, EffectNone, true
	}
}
