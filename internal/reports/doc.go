// Package reports builds the admin analytics views: page attribution,
// weekly lead cohorts, traffic source quality, the sales dashboard and the
// daily traffic summary.
//
// Every report is a pure fold over collections loaded from storage, so the
// same input always yields the same output. Rates whose denominator is zero
// are reported as 0. Service only loads the inputs for a date range.
package reports
