// Package materialize derives typed columns from the nested JSON fragments
// stored on each application, and checks the stored result.
//
// Population clears every materialized column and then derives and writes
// them page by page from the rule table. Validation re-derives the same
// values along an independent decoding path, compares them with what is
// stored and checks the pricing invariants. The Loop alternates the two
// until a validation pass comes back clean.
//
// Materialized values are a function of the stored fragments only, so
// repeated population over the same data yields identical columns.
package materialize
