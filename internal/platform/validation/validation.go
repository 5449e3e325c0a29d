// Package validation runs rule sets over request payloads. Rules carry a
// severity: errors block the request, warnings are only reported.
package validation

import (
	"fmt"
	"strings"

	"github.com/dchest/validator"
)

type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Failure is one broken rule.
type Failure struct {
	Field    string   `json:"field" xml:"field,attr"`
	Message  string   `json:"message" xml:",chardata"`
	Severity Severity `json:"severity" xml:"severity,attr"`
}

// Result collects the failures of one validation run.
type Result struct {
	Failures []Failure
}

func (r *Result) Add(field, message string, severity Severity) {
	r.Failures = append(r.Failures, Failure{Field: field, Message: message, Severity: severity})
}

func (r *Result) AddError(field, message string) {
	r.Add(field, message, Error)
}

func (r *Result) AddWarning(field, message string) {
	r.Add(field, message, Warning)
}

// Valid reports whether no failure has the Error severity.
func (r Result) Valid() bool {
	return len(r.Errors()) == 0
}

func (r Result) Errors() []Failure {
	return r.filter(Error)
}

func (r Result) Warnings() []Failure {
	return r.filter(Warning)
}

func (r Result) filter(s Severity) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// Err returns a *FailedError when r holds errors, nil otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &FailedError{Failures: r.Failures}
}

// FailedError is returned when a payload breaks at least one blocking rule.
// It is rendered as a 422.
type FailedError struct {
	Failures []Failure
}

func (e *FailedError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Severity == Error {
			msgs = append(msgs, f.Field+": "+f.Message)
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Fields groups the failure messages by field.
func (e *FailedError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Failures))
	for _, f := range e.Failures {
		out[f.Field] = append(out[f.Field], f.Message)
	}
	return out
}

type rule[T any] struct {
	field    string
	message  string
	severity Severity
	ok       func(T) bool
}

// Validator is an ordered rule set for T.
type Validator[T any] struct {
	rules []rule[T]
}

func New[T any]() *Validator[T] {
	return &Validator[T]{}
}

// Error adds a blocking rule: ok must hold for the payload to be accepted.
func (v *Validator[T]) Error(field, message string, ok func(T) bool) *Validator[T] {
	v.rules = append(v.rules, rule[T]{field: field, message: message, severity: Error, ok: ok})
	return v
}

// Warning adds a rule that is reported but never blocks.
func (v *Validator[T]) Warning(field, message string, ok func(T) bool) *Validator[T] {
	v.rules = append(v.rules, rule[T]{field: field, message: message, severity: Warning, ok: ok})
	return v
}

func (v *Validator[T]) Validate(x T) Result {
	var r Result
	for _, rl := range v.rules {
		if !rl.ok(x) {
			r.Add(rl.field, rl.message, rl.severity)
		}
	}
	return r
}

func NotBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

// IsEmail reports whether s is a bare address such as "bruce@wayne.com".
// Display names and dotless domains are rejected.
func IsEmail(s string) bool {
	if !validator.IsValidEmail(s) || strings.ContainsAny(s, " \t<>") {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at:], ".")
}

// Required formats the standard message of a missing field.
func Required(field string) string {
	return fmt.Sprintf("%s is required", field)
}
