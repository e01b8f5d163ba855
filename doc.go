/*
Package objio is a client-side access layer for an object store organized
as objects holding distribution keys (dkeys), each holding attribute keys
(akeys), each holding either a SINGLE opaque value or an ARRAY of fixed-size
records.

The storage engine sits behind the engine.Engine interface; package engine
also provides KV, a reference engine on top of Bolt or memory.

We implement:

1. Data descriptors (DataDesc), batching update or fetch entries for several
akeys under one dkey into a single engine call.

2. Record size reconciliation on fetch, so that a caller guessing the wrong
record size still gets whole records (or a RECORD_TOO_BIG error carrying the
real size).

3. Key descriptors (KeyDesc), driving paginated dkey and akey enumeration
through an opaque anchor.

4. Arena-backed buffers with deterministic release.

# Record sizes

Each akey has a record size fixed by its first write and kept until the akey
is punched. Updating an akey with another record size fails with
CodeIllegalArgument and leaves the stored data untouched.

On fetch, an entry whose declared record size matches the stored one reads
plain bytes: up to Capacity bytes from byte Offset. When they differ, Offset
is taken as a record index in the declared sizing, converted to a byte offset
in stored records, and Capacity is rounded down to whole stored records.

# Enumeration

A KeyDesc starts in StatusInProgress. Each list call returns up to
PageCapacity keys and ends in one of:

  - StatusReachedLimit: the page is full and more keys remain; call
    ContinueList, then list again.
  - StatusKeyTooBig: a key is longer than KeyLen; no keys were returned and
    SuggestedKeyLen holds the length needed. ContinueList adopts it and the
    next list call retries the same page.
  - StatusEnd: no keys remain; further list calls return nothing.

# Buffers

Every Buffer comes from the client's Arena and must be released exactly once,
normally via DataDesc.Release or KeyDesc.Release. Arena.Live reports buffers
not yet released.
*/
package objio
