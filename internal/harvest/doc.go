// Package harvest defines the core types shared by the catalog walker,
// descriptor extractor, THREDDS crawler, reaper and bookkeeper: the attribute
// schema and record, harvest resources and outcomes, the fetcher and store
// interfaces and the error taxonomy used to decide abort-vs-continue.
package harvest
