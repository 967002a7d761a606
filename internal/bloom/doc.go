// Package bloom implements a fixed-capacity k-hash bloom filter used to
// decide, without a storage read, whether a shard or chunk might hold a
// given entity id. See and §8 property 5.
//
// The filter never produces false negatives: if Contains returns false, the
// key is definitely absent. A true result means the key is probably
// present, at the configured false-positive rate.
package bloom
