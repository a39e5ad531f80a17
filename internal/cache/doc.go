// Package cache provides a bounded, thread-safe LRU cache.
//
//	views := cache.New[key, gfx.Descriptor](1024)
//	v, err := views.GetOrCreate(k, func() (gfx.Descriptor, error) {
//		return dev.CreateView(res, &desc)
//	})
//
// Entries past the capacity are evicted least recently used first. Values
// are dropped, not destroyed: owners that hold GPU objects in a cache remove
// them with Delete or DeleteFunc before releasing the underlying resource.
package cache
