/*
Package zonecount is a small MapReduce engine, derived from corral, that
runs the NYC taxi pickup count: trip records are mapped to
(PULocationID, 1) pairs, pre-aggregated per map bin by a combiner, summed
by reducers and labelled with zone names from a side-input lookup table.

The runtime model is a driver controlling stateless executors. Tasks run
in-process by default, or remotely on AWS Lambda or a Knative service; in
every mode a task ships its counters back to the driver, so skip and
fallback events are visible without reading worker logs.

The job logic lives in package pickup; the lookup table and enrichment join
in package zones; record extraction in package records.
*/
package zonecount
