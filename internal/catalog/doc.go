// Package catalog walks THREDDS HTML catalog pages: it discovers dataset
// landing pages on a catalog and resolves each landing page to the NcML
// descriptor documents it links to.
package catalog
