// Package formats reads and writes triangle meshes as Wavefront OBJ text,
// glTF 2.0 JSON and packed GLB.
//
// Parsers merge every primitive of a document into one mesh; exporters
// write exactly one mesh. Neither touches the file system: external glTF
// buffers are loaded through ParseOptions.ResolveURI.
package formats
