// Package watcher turns live filesystem notifications under a root directory
// into model.ChangeNotification values.
//
// The watcher registers fsnotify watches on every directory under the root
// and on directories created later. Only paths passing the extension filter
// are reported.
//
// Usage:
//
//	w, err := watcher.New(root, watcher.Options{Extensions: []string{".txt"}})
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    for n := range w.Events() {
//	        // publish n
//	    }
//	}()
//
//	// Blocks until ctx is cancelled or the notification source fails.
//	err = w.Run(ctx)
package watcher
