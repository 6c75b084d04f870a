// Package mediacache caches user-selected media locally and hands out
// ephemeral reference handles for it.
//
// Images are transcoded to fit a profile's dimension and byte budgets before
// they are stored; videos are stored verbatim. Each stored variant gets a
// handle of the form "blob:<origin>/<id>" that is only valid for the lifetime
// of the Manager that minted it. The bytes outlive the handle: after a
// restart the durable store still holds them, but old handles are stale and
// resolve to the empty string.
//
// Basic usage:
//
//	m, _ := mediacache.Open(mediacache.WithCacheDir("/tmp/media"))
//	defer m.Close()
//
//	// Store an upload under the photo profile
//	bundle, _ := m.Store(ctx, mediacache.RawFile{Name: "a.jpg", MIMEType: "image/jpeg", Data: data}, "photo")
//	fmt.Println(bundle.Handle, bundle.ThumbnailHandle)
//
//	// Render any stored reference
//	url := m.Resolve(bundle.Handle)          // live handle, unchanged
//	url = m.Resolve("images/hero.webp")      // media base + "/images/hero.webp"
//	url = m.Resolve("blob:null/dead")        // "", show a placeholder
//
//	// Hand the bytes to an uploader
//	file, err := m.Retrieve(ctx, bundle.Handle)
//	if errors.Is(err, mediacache.ErrHandleNotFound) { ... }
//
//	// Drop everything
//	m.Clear(ctx)
package mediacache
