package condition

import "nanogov/governor/pkg/policy/diag"

func diagLocation() diag.Location {
	return diag.Location{File: "policy.json", Pointer: "/rules/0/condition"}
}
