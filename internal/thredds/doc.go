// Package thredds crawls THREDDS catalog.xml trees and lists the leaf
// datasets with the service endpoints that serve them.
package thredds
