// Package pipeline sequences the two harvester workflows. The Indexer walks an
// HTML catalog into an index store; the Harvester crawls catalog.xml trees and
// mirrors service documents to disk while maintaining the retry files.
package pipeline
