// Package errors provides categorized, context-carrying errors with an optional
// reporting hook. It re-exports the standard helpers so callers only import one
// errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// Category classifies an error for reporting and HTTP mapping.
type Category string

const (
	CategoryGeneric       Category = "generic"
	CategoryValidation    Category = "validation"
	CategoryDatabase      Category = "database"
	CategoryNotification  Category = "notification"
	CategoryConstruction  Category = "construction"
	CategoryEvaluation    Category = "evaluation"
	CategoryConfiguration Category = "configuration"
	CategoryNetwork       Category = "network"
)

// EnhancedError wraps an underlying error with component, category and context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	if len(e.context) == 0 {
		return e.Err.Error()
	}
	keys := make([]string, 0, len(e.context))
	for k := range e.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.context[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), strings.Join(parts, ", "))
}

func (e *EnhancedError) Unwrap() error { return e.Err }

func (e *EnhancedError) GetComponent() string { return e.component }

func (e *EnhancedError) GetCategory() Category { return e.category }

// GetContext returns a copy of the attached context.
func (e *EnhancedError) GetContext() map[string]any {
	return maps.Clone(e.context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts a builder around an existing error.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder around a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.component = name
	return b
}

func (b *ErrorBuilder) Category(c Category) *ErrorBuilder {
	b.category = c
	return b
}

func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and hands it to the registered reporter, if any.
func (b *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
	}
	if r := currentReporter(); r != nil {
		r(ee)
	}
	return ee
}

// Reporter receives every built error. Telemetry installs one at startup.
type Reporter func(*EnhancedError)

var (
	reporterMu sync.RWMutex
	reporter   Reporter
)

// SetReporter installs r as the global reporter. Passing nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	reporter = r
	reporterMu.Unlock()
}

func currentReporter() Reporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

// CategoryOf returns the category of the first EnhancedError in err's chain.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}

// Standard library passthroughs.

func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }
