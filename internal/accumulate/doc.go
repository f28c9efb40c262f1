// Package accumulate implements the two response accumulators behind the
// transport's event contract: a buffered variant that caps and retains the
// body for structured results, and a streaming variant that forwards bytes
// to a sink and hard-aborts on limit overrun.
package accumulate
