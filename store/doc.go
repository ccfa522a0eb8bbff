// Package store defines the document store capability the entity layer is
// built on: documents, identifiers, predicates, index ranges and scans.
//
// A Store is supplied from outside. The memstore, sqlstore and cachestore
// subpackages provide implementations; NewScan evaluates a scan over the
// candidate documents of any Source, so backends only have to load
// documents.
package store
