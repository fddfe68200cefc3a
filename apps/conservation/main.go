// Command conservation runs the default experiment matrix one experiment at a time.
package main

import "github.com/abdul-hamid-achik/conserve/apps/cli/cmd"

func main() {
	cmd.ExecuteExample(cmd.NewExampleCommand("conservation", false))
}
