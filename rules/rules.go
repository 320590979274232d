//go:build ruleguard

// Package gorules holds ruleguard checks run through golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// GormWithoutContext flags terminal GORM calls on a handle that never had
// a context attached. Repository and state code must honor cancellation.
func GormWithoutContext(m dsl.Matcher) {
	m.Match(`$db.$method($*_)`).
		Where(m["db"].Type.Is("*gorm.DB") &&
			m["method"].Text.Matches(`^(Find|First|Take|Create|Save|Update|Updates|UpdateColumn|Delete|Count|Scan|Pluck|Exec|FirstOrCreate|Transaction)$`) &&
			!m["db"].Text.Matches(`WithContext`) &&
			!m["db"].Text.Matches(`^tx$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("call WithContext(ctx) before $method so the query is cancelled with the run")
}

// ErrorfWithoutWrap flags fmt.Errorf calls that format an error with %v or %s.
func ErrorfWithoutWrap(m dsl.Matcher) {
	m.Match(`fmt.Errorf($format, $*_, $err)`, `fmt.Errorf($format, $err)`).
		Where(m["err"].Type.Implements("error") &&
			m["format"].Text.Matches(`%v|%s`) &&
			!m["format"].Text.Matches(`%w`)).
		Report("wrap $err with %w so callers can match it with errors.Is")
}

// SlogOutsideLogger flags direct log/slog calls; modules log through logger.Logger.
func SlogOutsideLogger(m dsl.Matcher) {
	m.Import("log/slog")
	m.Match(`slog.$fn($*_)`).
		Where(m["fn"].Text.Matches(`^(Debug|Info|Warn|Error|Log)$`) &&
			!m.File().PkgPath.Matches(`/internal/logger$`)).
		Report("log through logger.Logger instead of slog.$fn")
}

// TestingContext suggests t.Context() over context.Background() in tests.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$fn(context.Background(), $*_)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() so work is cancelled when the test ends")
}

// WaitGroupGo suggests wg.Go over the Add/Done pattern.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... })").
		Suggest("$wg.Go(func() { $*_ })")
}
