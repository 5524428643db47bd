package linkdb_test

import (
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/linkdb"
)

type Counter struct {
	Hits int `json:"hits"`
}

func (*Counter) OnCreate(*linkdb.Link) {}
func (*Counter) OnLoad(*linkdb.Link)   {}

// Example demonstrates creating a database, storing an item and reading it
// back after a reopen.
func Example() {
	dir, err := os.MkdirTemp("", "linkdb-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := linkdb.Create(dir, 256, 64, 1<<20)
	if err != nil {
		log.Fatal(err)
	}

	hits, err := linkdb.GetLink(db, "hits", func() *Counter { return &Counter{} })
	if err != nil {
		log.Fatal(err)
	}
	for range 3 {
		if err := linkdb.Update(hits, func(c *Counter) error {
			c.Hits++
			return nil
		}); err != nil {
			log.Fatal(err)
		}
	}
	if err := db.Close(); err != nil {
		log.Fatal(err)
	}

	db, err = linkdb.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	hits, err = linkdb.GetLink(db, "hits", func() *Counter { return &Counter{} })
	if err != nil {
		log.Fatal(err)
	}
	c, err := linkdb.Get[*Counter](hits)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(c.Hits)
	// Output: 3
}

// ExampleLink_CreateChild demonstrates building a small tree of links.
func ExampleLink_CreateChild() {
	dir, err := os.MkdirTemp("", "linkdb-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := linkdb.Create(dir, 4, 64, 1<<20)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	parent, _ := linkdb.GetLink(db, "parent", func() *Counter { return &Counter{} })
	child, _ := parent.CreateChild(&Counter{Hits: 1})

	fmt.Println(child.GID(), child.PageID(), child.Slot(), child.Parent().GID() == parent.GID())
	// Output: 2 0 2 true
}
