// Package sweep models a parameter sweep: Variables of Values, the Variants
// formed by their cartesian product, and Suites that produce ordered
// Variant lists.
//
// Declaration order is significant everywhere. The product is materialized
// with the last-declared Variable varying fastest, and a Variant renders the
// parameters of a target in Variable declaration order. A Variant is
// immutable once built, so every stage may reuse it freely.
package sweep
