//
// web service that calculates admission scores from high-school
// transcripts. Each institution's rules are a fixed chain of stages
// (filters, converters, selectors, aggregators) assembled from a
// declarative definition; the service looks up the chain for the
// requested institution and runs one student, or a batch of students,
// through it, returning the score and a per-subject account of how it
// was reached.
//
package otfadmit
