// Package linkdb is an embedded object store that keeps a bounded working
// set of items in memory and the rest on disk.
//
// Every stored item sits behind a Link. A link has a permanent global id
// (gid) and lives in a fixed slot of a page; its item is serialized into
// fixed-size blocks of the page's block file and loaded on demand. Loaded
// items are charged against a memory budget, and when the budget would be
// exceeded the least recently used links are flushed and unloaded.
//
// # Quick Start
//
//	db, _ := linkdb.Create("./data", 1024, 512, 64<<20)  // page capacity, block size, budget
//	db, _ := linkdb.Open("./data")                       // re-open existing
//
//	users, _ := linkdb.GetLink(db, "users", func() *Users { return &Users{} })
//	_ = linkdb.Update(users, func(u *Users) error {
//	    u.Add("alice")
//	    return nil
//	})
//
//	child, _ := users.CreateChild(&Profile{Name: "alice"})
//	_ = db.Save()
//
// # Items
//
// Items implement Item and are encoded with the database codec (go-json by
// default). Item types are registered automatically the first time they are
// created; types that are only ever loaded after a reopen must be registered
// up front with Register or WithRegistry.
//
// # Eviction
//
// The residency list is an LRU with a second chance: Get and Update mark a
// link as accessed, and an accessed link at the tail is moved back to the
// head once instead of being evicted. Frozen links are never evicted. The
// budget is soft: when only frozen or busy links remain it is exceeded and
// a warning is logged.
//
// # Concurrency
//
// Operations on different links run in parallel; operations on one link
// are serialized. Save, SaveAndBackup and Close run alone: they wait for
// every in-flight link operation and block new ones until they finish.
// Neither side starves the other: a waiting Save holds back new link
// operations, and link operations that waited on a Save run before the next
// one starts.
//
// Item hooks run while the link's section is held and must not call into
// any Link.
//
// # Persistence
//
// Save writes linkdb.json, then every page: changed blocks are written and
// synced before the page's slot directory is atomically replaced. Link
// contents that are never saved are lost on a crash; there is no journal.
package linkdb
