package session

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/provisioner/pkg/errors"
)

// State of a provisioning session
type State string

// Session states, in order
const (
	Init                 State = "Init"
	CloningWorkingCopy   State = "CloningWorkingCopy"
	InstallingResources  State = "InstallingResources"
	ApplyingSettings     State = "ApplyingSettings"
	ProvisioningPackages State = "ProvisioningPackages"
	CleaningUp           State = "CleaningUp"
	Done                 State = "Done"
	Aborted              State = "Aborted"
)

// Terminal state?
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}

// Status of a step
type Status string

// Step statuses
const (
	Success Status = "success"
	Skipped Status = "skipped"
	Failed  Status = "failed"
)

// Exit codes
const (
	ExitOK      = 0
	ExitAborted = 1
	ExitPartial = 2
)

// Step is the outcome of one unit of work: a resource, a setting, a package...
type Step struct {
	State    State         `json:"state"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Duration time.Duration `json:"duration"`
	Detail   interface{}   `json:"detail,omitempty"`
}

// Result of a provisioning session. It is immutable once the session is finished.
type Result struct {
	ID       string    `json:"id"`
	State    State     `json:"state"`
	Steps    []Step    `json:"steps"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	// Err is the error which aborted the session
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Partial is true when the session completed with some failed steps
func (r *Result) Partial() bool {
	return r.State == Done && len(r.Failed()) > 0
}

// Failed steps
func (r *Result) Failed() []Step {
	var failed []Step
	for _, s := range r.Steps {
		if s.Status == Failed {
			failed = append(failed, s)
		}
	}
	return failed
}

// ExitCode for the process: an aborted session always exits with a non-zero status.
// A partial success does so only when strict.
func (r *Result) ExitCode(strict bool) int {
	switch {
	case r.State == Aborted:
		return ExitAborted
	case strict && r.Partial():
		return ExitPartial
	default:
		return ExitOK
	}
}

func (r *Result) record(s Step, err error) {
	if err != nil {
		s.Status = Failed
		s.Reason = err.Error()
		if kind := errors.KindOf(err); kind != nil {
			s.Kind = kind.Error()
		}
	}
	r.Steps = append(r.Steps, s)
}

// WriteReport renders the result as JSON
func (r *Result) WriteReport(w io.Writer) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Summary writes a human readable account of every step
func (r *Result) Summary(w io.Writer) {
	ok := color.New(color.FgGreen)
	skip := color.New(color.FgYellow)
	ko := color.New(color.FgRed, color.Bold)

	for _, s := range r.Steps {
		switch s.Status {
		case Success:
			_, _ = ok.Fprint(w, "  ok    ")
		case Skipped:
			_, _ = skip.Fprint(w, "  skip  ")
		default:
			_, _ = ko.Fprint(w, "  FAIL  ")
		}
		_, _ = fmt.Fprintf(w, "%-22s %s", s.State, s.Name)
		if s.Reason != "" {
			_, _ = fmt.Fprintf(w, ": %s", s.Reason)
		}
		_, _ = fmt.Fprintln(w)
	}

	elapsed := r.Finished.Sub(r.Started).Round(time.Second)
	switch {
	case r.State == Aborted:
		_, _ = ko.Fprintf(w, "session %s aborted after %s: %v\n", r.ID, elapsed, r.Err)
	case r.Partial():
		_, _ = skip.Fprintf(w, "session %s done in %s with %d failed step(s)\n", r.ID, elapsed, len(r.Failed()))
	default:
		_, _ = ok.Fprintf(w, "session %s done in %s\n", r.ID, elapsed)
	}
}
