// Package chunk implements the GraphCol columnar chunk codec :
// encoding a batch of triples into an immutable, append-only binary blob,
// and decoding just enough of it — first the footer, then one entity's
// byte range — to answer a query without reading the whole chunk.
//
// # Layout
//
// A chunk is:
//
//	header | predicate dictionary | entity data section | footer | trailer
//
// The entity data section groups a subject's triples into one contiguous
// block, in subject-sorted order, so that the footer's entity index can
// record a single (byteOffset, byteLength) pair per entity and
// ReadEntitySlice can decode it with one slice operation — no scan of the
// rest of the chunk. The trailer is a fixed 23 bytes at the very end of the
// file (8-byte footer offset, 8-byte footer size, 7-byte magic) so DecodeChunkFooter never has to
// guess where the footer starts.
package chunk
