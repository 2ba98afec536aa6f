// Package util provides helper components shared by the dMap packages.
//
// The package contains:
//   - statistics: Stats/DistributionStats summarising a set of samples and a
//     bucketed Histogram used to describe index key-set sizes and the
//     estimated memory units of indexed values
//   - queue: a lock-free multi-producer single-consumer queue used to deliver
//     map events asynchronously, preserving the order of each producer
package util
