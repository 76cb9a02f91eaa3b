// Command pkg6repo is the CLI front end for a pkg6 repository: creating
// and administering repositories, publishing package versions, and
// querying the catalog and search index.
package main

import "os"

func main() {
	os.Exit(Execute())
}
