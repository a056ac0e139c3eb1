// Package spot ingests the SPOT export written by the point-of-sale system.
//
// Each line is one operation in quoted-comma form:
//
//	"ADDITEM","FULL-1","INV-1","1","0","0.0","CUST-1",...
//
// Fields are split on the literal `","` delimiter and stripped of one layer
// of quotes and surrounding whitespace; embedded commas are not supported.
// ParseLine turns a line into one of the Op variants, validating every
// field it needs, and Ingestor.Apply applies a batch of them inside one
// database transaction.
//
// Batch policy decides what a bad line does to the rest of its batch:
// PolicySkipLine records the failure and carries on, PolicyAbortBatch
// rolls the whole batch back. An unknown opcode always fails the batch.
package spot
