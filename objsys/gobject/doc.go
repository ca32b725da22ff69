// Package gobject implements objsys.System over the real GObject type
// system, loading libgobject-2.0 at runtime via purego. Only the
// primitive calls live here; ownership normalization and disposal
// sequencing are the bridge's job.
//
// The backend is available on the platforms purego's dynamic loading
// supports; see New.
package gobject
