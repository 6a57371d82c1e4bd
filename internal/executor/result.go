package executor

import (
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of one unit when outcomes are collected rather than
// merged (see Collect). It is what the CLI renders per shard.
type Result struct {
	// Target identifies which backend this result is from
	Target string

	// Data contains the unit's result (nil if an error occurred)
	Data interface{}

	// Error contains any error that occurred during execution (nil if successful)
	Error error

	// Duration is how long the unit took to execute
	Duration time.Duration
}

// Failed reports whether the unit returned an error
func (r Result) Failed() bool {
	return r.Error != nil
}

// CountSuccessful returns the number of successful results (no error)
func CountSuccessful(results []Result) int {
	return len(results) - CountFailed(results)
}

// CountFailed returns the number of failed results (has error)
func CountFailed(results []Result) int {
	count := 0
	for _, r := range results {
		if r.Failed() {
			count++
		}
	}
	return count
}

// FilterFailed returns only the failed results
func FilterFailed(results []Result) []Result {
	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Failed() {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Errors returns the errors of failed results, each tagged with its target
func Errors(results []Result) []error {
	errs := make([]error, 0)
	for _, r := range results {
		if r.Failed() {
			errs = append(errs, fmt.Errorf("%s: %w", r.Target, r.Error))
		}
	}
	return errs
}

// HasErrors returns true if any results contain errors
func HasErrors(results []Result) bool {
	return CountFailed(results) > 0
}

// Summary provides a summary of execution results
type Summary struct {
	Total       int
	Successful  int
	Failed      int
	AvgDuration time.Duration
	MaxDuration time.Duration
	MinDuration time.Duration
}

// Summarize creates a summary of the results
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	if len(results) == 0 {
		return s
	}

	var total time.Duration
	s.MinDuration = results[0].Duration
	for _, r := range results {
		if r.Failed() {
			s.Failed++
		} else {
			s.Successful++
		}
		total += r.Duration
		if r.Duration > s.MaxDuration {
			s.MaxDuration = r.Duration
		}
		if r.Duration < s.MinDuration {
			s.MinDuration = r.Duration
		}
	}
	s.AvgDuration = total / time.Duration(len(results))
	return s
}

// SuccessRate returns the success rate as a percentage (0.0 to 100.0)
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0.0
	}
	return float64(s.Successful) / float64(s.Total) * 100.0
}

// String returns a human-readable string representation of the summary
func (s Summary) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Total: %d, Successful: %d, Failed: %d", s.Total, s.Successful, s.Failed)
	if s.Total > 0 {
		fmt.Fprintf(&sb, ", Avg: %s, Max: %s, Min: %s",
			s.AvgDuration.Round(time.Millisecond),
			s.MaxDuration.Round(time.Millisecond),
			s.MinDuration.Round(time.Millisecond))
	}

	return sb.String()
}
