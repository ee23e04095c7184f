// Command pagewatch runs the page change-detection service.
package main

import "github.com/JakeFAU/pagewatch/cmd"

func main() {
	cmd.Execute()
}
