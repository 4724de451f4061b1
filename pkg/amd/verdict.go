package amd

import (
	"fmt"
	"time"
)

// Status is the top-level classification published as AMDSTATUS.
type Status string

const (
	StatusMachine Status = "MACHINE"
	StatusHuman   Status = "HUMAN"
	StatusNotSure Status = "NOTSURE"
	StatusHangup  Status = "HANGUP"
)

// Cause names the rule that produced a [Verdict]. It is published as AMDCAUSE.
type Cause string

const (
	// CauseNone accompanies NOTSURE verdicts.
	CauseNone Cause = ""

	// CauseTooLong: the total analysis time elapsed without another decision.
	CauseTooLong Cause = "TOOLONG"

	// CauseInitialSilence: too much silence before the first voice.
	CauseInitialSilence Cause = "INITIALSILENCE"

	// CauseHuman: silence after a short greeting.
	CauseHuman Cause = "HUMAN"

	// CauseLongGreeting: the cumulative voice duration exceeded the greeting budget.
	CauseLongGreeting Cause = "LONGGREETING"

	// CauseMaxWordLength: a single voice run was too long.
	CauseMaxWordLength Cause = "MAXWORDLENGTH"

	// CauseMaxWords: too many words were spoken.
	CauseMaxWords Cause = "MAXWORDS"

	// CauseHangup: the call was hung up or the stream failed.
	CauseHangup Cause = "HANGUP"
)

// Names of the result variables exposed to the dialplan or caller.
const (
	VarStatus = "AMDSTATUS"
	VarCause  = "AMDCAUSE"
)

// Verdict is the terminal result of one analysis. Exactly one verdict is
// produced per call and it never changes once produced.
type Verdict struct {
	Status Status
	Cause  Cause

	// At is the analysis time at which the verdict was reached.
	At time.Duration

	// Words is the number of completed words observed.
	Words int

	// VoiceDuration is the cumulative voice duration observed.
	VoiceDuration time.Duration
}

// Variables returns the verdict as the AMDSTATUS / AMDCAUSE variable pair.
// AMDCAUSE is empty for NOTSURE.
func (v Verdict) Variables() map[string]string {
	return map[string]string{
		VarStatus: string(v.Status),
		VarCause:  string(v.Cause),
	}
}

// String returns a compact "STATUS/CAUSE" form, e.g. "MACHINE/TOOLONG".
func (v Verdict) String() string {
	if v.Cause == CauseNone {
		return string(v.Status)
	}
	return fmt.Sprintf("%s/%s", v.Status, v.Cause)
}
