// Package scattergather fans one incoming GET request out to several
// downstream sources and aggregates their contributions into one response.
//
// # Architecture Role
//
// A route is bound to a fixed set of Gatherers. For every request the route
// handler runs all gatherers concurrently, feeds each result into a fresh
// per-request Aggregator, and writes the aggregate once every gatherer has
// completed. The first gatherer error that is not ignored cancels the rest
// and fails the request; no partial body is ever written.
//
// # Package Structure
//
//	internal/scattergather/
//	├── gatherer.go       # Gatherer, TypedGatherer, NewGathererFunc
//	├── http_gatherer.go  # HTTPGatherer and its default mappers/transform
//	├── http_factory.go   # HTTP gatherer built from configuration
//	├── aggregator.go     # DefaultAggregator, JSONAggregator
//	├── registry.go       # FactoryRegistry (type name -> GathererFactory)
//	├── services.go       # Services shared by all routes
//	├── loader.go         # LoadOptions: route definitions from configuration
//	├── registrar.go      # Registrar: MapScatterGather, MapScatterGatherFromConfig
//	└── handler.go        # per-request orchestration
//
// # Configuration
//
//	ScatterGather:
//	  - Template: /samples
//	    UseOutputFormatters: true
//	    Gatherers:
//	      - Key: ASamplesSource
//	        DestinationUrl: http://localhost:5000/samples/ASamplesSource
//	      - Type: jsonpath
//	        Key: BSamplesSource
//	        DestinationUrl: http://localhost:5000/samples/BSamplesSource
//	        Path: $.items[*]
//
// Keys are matched case-insensitively. A gatherer without Type is the
// built-in HTTP gatherer; other types are registered with
// Services.AddGathererFactory before routes are mapped.
package scattergather
