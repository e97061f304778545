// Package planner selects encode settings for recordings.
//
// The classifier (classify.go) maps probe characteristics to one of six
// fixed tiers, the resolution scaler (scale.go) adjusts a tier's VBV budget
// for the source resolution, and the estimator (estimate.go) projects the
// output size for operator logs. All three are pure functions over value
// types; the catalog itself is never mutated.
package planner
