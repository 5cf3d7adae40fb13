// Copyright dero developers

/*
Spacebee is an embedded, versioned key-value index built on top of an append-only, replicable log of binary records.

The log is never rewritten. Every put or delete appends one record, which carries the entry and the part of the index that changed, so any log length is a complete, readable version of the tree. Readers on replicas that hold only part of the log fetch just the records their lookups touch.

	Spacebee has
		1) ordered keys and bounded, reversible range scans
		2) append only storage, every version readable forever
		3) free checkouts and snapshots (a version is only a log length)
		4) sub namespaces sharing one log
		5) atomic multi key batches
		6) history replay by sequence number
		7) a tree shape derived from the keys alone, identical on every replica
		8) pluggable key and value encodings


	Features

		* The index is the binary form of a deterministic skip list, the tower height of a key is derived from its xxhash
		* Logarithmic lookups without rebalancing or random numbers
		* Record 0 is a CBOR header, IsSpacebee tells a spacebee log from anything else
		* Reads of records a replica does not hold yet wait for them, or fail with ErrBlockUnavailable when asked not to wait
		* Memory, split file and LevelDB log backends (package core)
		* Diff between 2 versions of the tree
		* Per session caches of decoded nodes, prometheus metrics, zerolog logging


Eg. Minimal code, to write and read back a value (error checking is skipped)
	log, _ := core.NewDisk("/tmp/testdb")                  // create a new log in "/tmp/testdb"
	db, _ := spacebee.New(log, nil)                         // open the index over it
	db.Put(ctx, []byte("key"), []byte("value"))            // insert a value
	entry, _ := db.Get(ctx, []byte("key"))                 // entry.Value is []byte("value")

Eg, Snapshots, see github.com/deroproject/spacebee/examples/snapshot_example/snapshot_example.go

*/
package spacebee
