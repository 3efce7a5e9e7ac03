// Package enforce turns the active policy set into verdicts.
//
// An Engine ties a policy source (normally *store.Store) to a journal
// (normally *decisionlog.Log). Enforce scans the policies that apply at a
// checkpoint in load order; the first rule whose condition holds with a
// terminating action decides the verdict:
//
//	deny          -> VerdictDeny
//	quarantine    -> VerdictQuarantine, EffectQuarantine
//	self_destruct -> VerdictErase, EffectEraseAndHalt
//
// Rules with allow or log actions are recorded and the scan continues. When
// nothing terminates the scan the verdict is VerdictAllow. Internal faults
// (nil state, uncompiled rule, journal corruption, guard timeout) resolve to
// VerdictDeny and are recorded under the ENGINE/FAULT identifiers.
//
// Condition anomalies never change a verdict by themselves: the affected
// comparison is false and the anomaly is reported in the Decision.
package enforce
