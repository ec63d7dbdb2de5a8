// Package services builds and holds the filingqa component graph.
//
// Build wires the extractor, embedding provider, index backend, reranker,
// scope filter, generator, answer assembler, scrubber, event bus and qa
// service from a config.Config. Commands use the accessor methods on the
// returned Registry and call Close when done.
package services
