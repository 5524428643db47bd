// Package page implements fixed-capacity pages of object slots, each backed by
// one block file partitioned into fixed-size blocks.
//
// A page owns two files in the database directory:
//
//	page-<id>.blk  concatenated blocks holding serialized items
//	page-<id>.dir  the slot directory (which slots are used, their graph
//	               edges, block lists and byte lengths)
//
// The block file is written in place. The directory file is replaced
// atomically after the block file has been synced, so a crash during save
// leaves each page at either its previous or its new state.
package page
