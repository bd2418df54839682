// Package vectorstore persists the chunk index and answers nearest-neighbour
// queries against it.
//
// An index is a directory holding a chromem-go database and a manifest:
//
//	<path>/
//	  manifest.yaml   build id, embedding model, dimension, chunk count, sources
//	  vectors/        chromem-go persistent DB (one collection)
//
// Indexes are built once with Build and never updated in place. A rebuild
// writes a complete new index into a temporary sibling directory and renames
// it over the old one, so readers only ever observe a whole index.
//
// Open validates the manifest against the running configuration before any
// query is served. Query ranks by cosine similarity and breaks ties by
// insertion ordinal, so identical inputs always produce identical ordering.
//
// Handle and Watcher let a long-running server swap in a rebuilt index
// without restarting. In-flight queries keep the snapshot they started with.
package vectorstore
