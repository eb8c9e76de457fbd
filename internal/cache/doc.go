// Package cache persists compiled dependency artifacts across builds.
//
// A [Store] is rooted at a shared on-disk directory and addresses layers by
// [Key], the pair of normalized target triple and dependency fingerprint.
// Lookup is exact: a layer either matches the key or does not exist for
// lookup purposes. There is no timestamp or fuzzy reuse.
//
// Population is staged: artifacts are written to a temporary directory under
// the store root and published with a single atomic rename. An interrupted
// build therefore never leaves a partially written directory at a key path,
// and concurrent builds racing on the same key resolve to first writer wins.
//
// Example usage:
//
//	store, err := cache.NewStore(root)
//	if err != nil {
//	    return err
//	}
//
//	if layer, ok, err := store.Lookup(key); err == nil && ok {
//	    return use(layer)
//	}
//
//	staging, err := store.Begin(key)
//	if err != nil {
//	    return err
//	}
//	defer staging.Discard()
//
//	if err := compileInto(staging.Dir); err != nil {
//	    return err
//	}
//	layer, err := staging.Commit()
package cache
