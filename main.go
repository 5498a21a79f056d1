// Command prodrefs collects product reference rows from Tokopedia.
package main

import "github.com/JakeFAU/prodrefs/cmd"

func main() {
	cmd.Execute()
}
