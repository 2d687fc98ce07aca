// Package shard identifies documents within their originating shard.
package shard

import "fmt"

// ID identifies the shard a candidate list came from.
// Assigned once per search request and never shared across requests.
type ID struct {
	index string
	num   int
}

// NewID creates a shard identifier.
func NewID(index string, num int) ID {
	return ID{index: index, num: num}
}

// Index returns the name of the index the shard belongs to.
func (id ID) Index() string { return id.index }

// Num returns the shard ordinal within the request.
func (id ID) Num() int { return id.num }

// String renders "index[num]" for logs and explain payloads.
func (id ID) String() string {
	return fmt.Sprintf("%s[%d]", id.index, id.num)
}

// DocRef is the identity of one matched document inside one shard's
// result set. A DocRef is only meaningful within the request that
// produced it; local doc ids from different shards are unrelated.
type DocRef struct {
	doc   int
	shard ID
}

// NewDocRef creates a document reference.
func NewDocRef(doc int, s ID) DocRef {
	return DocRef{doc: doc, shard: s}
}

// Doc returns the shard-local document id.
func (r DocRef) Doc() int { return r.doc }

// Shard returns the originating shard.
func (r DocRef) Shard() ID { return r.shard }

// String renders "index[num]/doc".
func (r DocRef) String() string {
	return fmt.Sprintf("%s/%d", r.shard, r.doc)
}
